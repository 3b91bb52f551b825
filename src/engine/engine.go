// Package engine drives the agentic loop: it streams model turns through
// the proxy client, executes requested tools in the sandbox, feeds results
// back as synthetic user turns and persists the conversation after every
// mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/src/chat"
	"github.com/parleyhq/parley/src/proxyclient"
	"github.com/parleyhq/parley/src/sandbox"
	"github.com/parleyhq/parley/src/storage"
)

const (
	// DefaultMaxTurns caps how many model turns one Send may consume.
	DefaultMaxTurns = 20

	// DefaultMaxTokens is the per-turn generation budget sent upstream.
	DefaultMaxTokens = 8192
)

// ErrConversationBusy is returned when a Send targets a conversation that
// already has a loop in flight.
var ErrConversationBusy = errors.New("conversation already has an active stream")

// Config assembles the engine's collaborators.
type Config struct {
	Client  *proxyclient.Client
	Store   *storage.Store
	Toolbox *sandbox.Toolbox
	Sink    EventSink
	Logger  *slog.Logger

	Model        string
	MaxTokens    int
	MaxTurns     int
	SystemPrompt string
}

// Engine runs agentic loops. One Engine serves many conversations, but at
// most one loop per conversation id at a time.
type Engine struct {
	client  *proxyclient.Client
	store   *storage.Store
	toolbox *sandbox.Toolbox
	sink    EventSink
	logger  *slog.Logger

	model        string
	maxTokens    int
	maxTurns     int
	systemPrompt string

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates an engine from the given configuration.
func New(config Config) *Engine {
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Sink == nil {
		config.Sink = NopSink{}
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		client:       config.Client,
		store:        config.Store,
		toolbox:      config.Toolbox,
		sink:         config.Sink,
		logger:       logger.With("component", "engine"),
		model:        config.Model,
		maxTokens:    config.MaxTokens,
		maxTurns:     config.MaxTurns,
		systemPrompt: config.SystemPrompt,
	}
}

// Send appends userText to the conversation (creating it when
// conversationID is empty) and runs the agentic loop until the model stops
// requesting tools, the turn ceiling is hit, or the stream fails. A
// non-empty model overrides the conversation's model for this and later
// turns. The returned conversation reflects everything that was persisted.
func (e *Engine) Send(ctx context.Context, conversationID, userText, model string) (*chat.Conversation, error) {
	conv, err := e.loadOrCreate(ctx, conversationID, model)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := e.register(conv.ID, cancel); err != nil {
		return conv, err
	}
	defer e.unregister(conv.ID)

	logger := e.logger.With("conversation_id", conv.ID, "model", conv.Model)

	conv.Messages = append(conv.Messages, chat.UserText(userText))
	if conv.Title == "" {
		conv.Title = chat.DeriveTitle(userText)
	}
	if err := e.persist(ctx, conv); err != nil {
		return conv, err
	}

	e.emit(&StreamStartEvent{BaseEvent: e.base(EventStreamStart, conv.ID, 0), Model: conv.Model})

	for turn := 1; turn <= e.maxTurns; turn++ {
		req := &chat.MessagesRequest{
			Model:     conv.Model,
			MaxTokens: e.maxTokens,
			Stream:    true,
			System:    e.systemPrompt,
			Tools:     e.toolbox.Schemas(),
			Messages:  conv.Messages,
		}

		blocks, err := e.client.Turn(ctx, req, &sinkNotifier{engine: e, conversationID: conv.ID, turn: turn})
		if err != nil {
			aborted := chat.IsAborted(err)
			logger.Warn("model turn failed", "turn", turn, "aborted", aborted, "error", err)
			e.emit(&StreamErrorEvent{BaseEvent: e.base(EventStreamError, conv.ID, turn), Error: err, Aborted: aborted})
			return conv, err
		}

		conv.Messages = append(conv.Messages, chat.AssistantBlocks(blocks))
		if err := e.persist(ctx, conv); err != nil {
			return conv, err
		}

		uses := conv.Messages[len(conv.Messages)-1].ToolUses()
		if len(uses) == 0 {
			logger.Debug("loop complete", "turns", turn)
			e.emit(&StreamDoneEvent{BaseEvent: e.base(EventStreamDone, conv.ID, turn), Reason: DoneEndTurn, TotalTurns: turn})
			return conv, nil
		}

		results := make([]chat.ContentBlock, 0, len(uses))
		for _, use := range uses {
			e.emit(&ToolExecutingEvent{
				BaseEvent: e.base(EventToolExecuting, conv.ID, turn),
				ToolUseID: use.ID,
				Name:      use.Name,
				Input:     use.Input,
			})

			started := time.Now()
			res := e.toolbox.Execute(ctx, use.Name, use.Input)
			e.emit(&ToolResultEvent{
				BaseEvent: e.base(EventToolResult, conv.ID, turn),
				ToolUseID: use.ID,
				Name:      use.Name,
				Result:    res,
				Duration:  time.Since(started),
			})

			results = append(results, chat.ToolResultBlock(use.ID, res.Output, res.IsError))
		}

		conv.Messages = append(conv.Messages, chat.ToolResults(results))
		if err := e.persist(ctx, conv); err != nil {
			return conv, err
		}
	}

	logger.Warn("turn ceiling reached", "max_turns", e.maxTurns)
	e.emit(&StreamDoneEvent{BaseEvent: e.base(EventStreamDone, conv.ID, e.maxTurns), Reason: DoneMaxTurns, TotalTurns: e.maxTurns})
	return conv, nil
}

// Abort cancels the active loop for the conversation, if any. It reports
// whether a loop was found. The loop itself surfaces the abort through a
// StreamErrorEvent and the error returned by Send.
func (e *Engine) Abort(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.active[conversationID]
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) loadOrCreate(ctx context.Context, conversationID, modelOverride string) (*chat.Conversation, error) {
	if conversationID == "" {
		model := modelOverride
		if model == "" {
			model = e.model
		}
		conv := &chat.Conversation{Model: model}
		// Save immediately so the conversation has an id to abort by.
		if err := e.store.Save(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := e.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	if modelOverride != "" {
		conv.Model = modelOverride
	} else if conv.Model == "" {
		conv.Model = e.model
	}
	return conv, nil
}

func (e *Engine) persist(ctx context.Context, conv *chat.Conversation) error {
	if err := e.store.Save(ctx, conv); err != nil {
		e.emit(&StreamErrorEvent{BaseEvent: e.base(EventStreamError, conv.ID, 0), Error: err})
		return fmt.Errorf("failed to persist conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (e *Engine) register(conversationID string, cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		e.active = make(map[string]context.CancelFunc)
	}
	if _, busy := e.active[conversationID]; busy {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrConversationBusy)
	}
	e.active[conversationID] = cancel
	return nil
}

func (e *Engine) unregister(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, conversationID)
}

func (e *Engine) base(eventType EventType, conversationID string, turn int) BaseEvent {
	return BaseEvent{
		Type:           eventType,
		Timestamp:      time.Now(),
		ConversationID: conversationID,
		Turn:           turn,
	}
}

func (e *Engine) emit(event Event) {
	if err := e.sink.Send(event); err != nil {
		e.logger.Warn("failed to deliver event", "event_type", event.GetType(), "error", err)
	}
}

// sinkNotifier bridges decoder notifications onto the event sink.
type sinkNotifier struct {
	engine         *Engine
	conversationID string
	turn           int
}

func (n *sinkNotifier) BlockStart(index int, block chat.ContentBlock) {
	n.engine.emit(&BlockStartEvent{
		BaseEvent: n.engine.base(EventBlockStart, n.conversationID, n.turn),
		Index:     index,
		Block:     block,
	})
}

func (n *sinkNotifier) BlockDelta(index int, fragment string) {
	n.engine.emit(&BlockDeltaEvent{
		BaseEvent: n.engine.base(EventBlockDelta, n.conversationID, n.turn),
		Index:     index,
		Fragment:  fragment,
	})
}

func (n *sinkNotifier) BlockStop(index int, block chat.ContentBlock) {
	n.engine.emit(&BlockStopEvent{
		BaseEvent: n.engine.base(EventBlockStop, n.conversationID, n.turn),
		Index:     index,
		Block:     block,
	})
}
