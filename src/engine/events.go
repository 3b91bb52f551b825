package engine

import (
	"fmt"
	"time"

	"github.com/parleyhq/parley/src/chat"
	"github.com/parleyhq/parley/src/sandbox"
)

// EventType identifies the kind of a loop event.
type EventType string

const (
	// Stream lifecycle events.
	EventStreamStart EventType = "stream_start"
	EventStreamDone  EventType = "stream_done"
	EventStreamError EventType = "stream_error"

	// Content block events, forwarded live while the model streams.
	EventBlockStart EventType = "block_start"
	EventBlockDelta EventType = "block_delta"
	EventBlockStop  EventType = "block_stop"

	// Tool events.
	EventToolExecuting EventType = "tool_executing"
	EventToolResult    EventType = "tool_result"
)

// Reasons carried by StreamDoneEvent.
const (
	DoneEndTurn  = "end_turn"
	DoneMaxTurns = "max_turns"
)

// Event is the base interface for all loop events.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetConversationID() string
	GetTurn() int
}

// BaseEvent contains the fields common to all events.
type BaseEvent struct {
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id"`
	Turn           int       `json:"turn"`
}

func (e BaseEvent) GetType() EventType        { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time   { return e.Timestamp }
func (e BaseEvent) GetConversationID() string { return e.ConversationID }
func (e BaseEvent) GetTurn() int              { return e.Turn }

// StreamStartEvent marks the beginning of an agentic loop run.
type StreamStartEvent struct {
	BaseEvent
	Model string `json:"model"`
}

// BlockStartEvent announces a new content block at the given index.
type BlockStartEvent struct {
	BaseEvent
	Index int               `json:"index"`
	Block chat.ContentBlock `json:"block"`
}

// BlockDeltaEvent carries one text or thinking fragment. Tool input
// fragments are accumulated internally and never surface as deltas.
type BlockDeltaEvent struct {
	BaseEvent
	Index    int    `json:"index"`
	Fragment string `json:"fragment"`
}

// BlockStopEvent carries the completed block.
type BlockStopEvent struct {
	BaseEvent
	Index int               `json:"index"`
	Block chat.ContentBlock `json:"block"`
}

// ToolExecutingEvent is emitted just before a tool runs.
type ToolExecutingEvent struct {
	BaseEvent
	ToolUseID string         `json:"tool_use_id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

// ToolResultEvent is emitted after a tool finishes, success or not.
type ToolResultEvent struct {
	BaseEvent
	ToolUseID string         `json:"tool_use_id"`
	Name      string         `json:"name"`
	Result    sandbox.Result `json:"result"`
	Duration  time.Duration  `json:"duration"`
}

// StreamDoneEvent marks a loop that ran to completion. Reason is
// DoneEndTurn when the model stopped requesting tools, DoneMaxTurns when
// the turn ceiling cut the loop short.
type StreamDoneEvent struct {
	BaseEvent
	Reason     string `json:"reason"`
	TotalTurns int    `json:"total_turns"`
}

// StreamErrorEvent marks a loop that ended with an error, including aborts.
type StreamErrorEvent struct {
	BaseEvent
	Error   error `json:"error"`
	Aborted bool  `json:"aborted"`
}

// EventSink receives loop events as they happen.
type EventSink interface {
	// Send delivers an event to the sink.
	Send(event Event) error

	// Close closes the event sink.
	Close() error
}

// EventProcessor consumes events delivered through a ChannelEventSink.
type EventProcessor interface {
	Process(event Event) error
	Close() error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Send(Event) error { return nil }
func (NopSink) Close() error     { return nil }

// ChannelEventSink fans events out to processors on a dedicated goroutine
// so slow consumers never stall the loop past the channel buffer.
type ChannelEventSink struct {
	events     chan Event
	processors []EventProcessor
	done       chan struct{}
}

// NewChannelEventSink creates a channel-backed sink and starts delivering.
func NewChannelEventSink(bufferSize int, processors ...EventProcessor) *ChannelEventSink {
	sink := &ChannelEventSink{
		events:     make(chan Event, bufferSize),
		processors: processors,
		done:       make(chan struct{}),
	}
	go sink.deliver()
	return sink
}

// Send delivers an event to the sink.
func (s *ChannelEventSink) Send(event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-s.done:
		return fmt.Errorf("event sink is closed")
	}
}

// Close drains pending events and closes the processors.
func (s *ChannelEventSink) Close() error {
	close(s.events)
	<-s.done

	var firstErr error
	for _, p := range s.processors {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *ChannelEventSink) deliver() {
	defer close(s.done)
	for event := range s.events {
		for _, p := range s.processors {
			// Processor errors are not actionable here; the loop must
			// keep going regardless of consumer health.
			_ = p.Process(event)
		}
	}
}
