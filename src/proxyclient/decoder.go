package proxyclient

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/src/chat"
)

// Notifier receives ordered progress notifications while a turn is being
// decoded. Implementations must not reorder or batch across block
// boundaries; callers not interested in progress can pass NopNotifier.
type Notifier interface {
	// BlockStart fires as soon as a block opens. For tool_use blocks the
	// id and name are already populated; text and input are not.
	BlockStart(index int, block chat.ContentBlock)

	// BlockDelta carries just the new text fragment, not the whole buffer.
	BlockDelta(index int, fragment string)

	// BlockStop fires with the finalized block, tool input already parsed.
	BlockStop(index int, block chat.ContentBlock)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) BlockStart(int, chat.ContentBlock) {}
func (NopNotifier) BlockDelta(int, string)            {}
func (NopNotifier) BlockStop(int, chat.ContentBlock)  {}

// eventKind is the closed set of SSE event types the proxy may emit.
// Anything else maps to eventUnknown and is counted, never silently
// folded into another arm.
type eventKind int

const (
	eventUnknown eventKind = iota
	eventMessageStart
	eventContentBlockStart
	eventContentBlockDelta
	eventContentBlockStop
	eventMessageDelta
	eventMessageStop
	eventPing
)

func parseEventKind(name string) eventKind {
	switch name {
	case "message_start":
		return eventMessageStart
	case "content_block_start":
		return eventContentBlockStart
	case "content_block_delta":
		return eventContentBlockDelta
	case "content_block_stop":
		return eventContentBlockStop
	case "message_delta":
		return eventMessageDelta
	case "message_stop":
		return eventMessageStop
	case "ping":
		return eventPing
	default:
		return eventUnknown
	}
}

// Wire shapes for SSE payloads.
type ssePayload struct {
	Type         string    `json:"type"`
	Index        int       `json:"index"`
	ContentBlock *sseBlock `json:"content_block,omitempty"`
	Delta        *sseDelta `json:"delta,omitempty"`
}

type sseBlock struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type sseDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// blockAccumulator holds the currently-decoding block's state: a text
// buffer for text/thinking and a partial-JSON buffer for tool input. Tool
// input is parsed once, fully, at block stop.
type blockAccumulator struct {
	open      bool
	index     int
	blockType string
	id        string
	name      string
	text      strings.Builder
	inputJSON strings.Builder
}

// Decoder reduces one HTTP response for a single model turn into an
// ordered list of completed content blocks.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a decoder. A nil logger falls back to slog.Default.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger.With("component", "stream_decoder")}
}

// Decode consumes resp and returns the completed blocks for the turn. The
// response is either a text/event-stream or a single JSON document; the
// content type decides. The body is always closed, including on abort.
func (d *Decoder) Decode(ctx context.Context, resp *http.Response, notify Notifier) ([]chat.ContentBlock, error) {
	defer resp.Body.Close()

	if notify == nil {
		notify = NopNotifier{}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &chat.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	if mediaType == "text/event-stream" {
		return d.decodeSSE(ctx, resp.Body, notify)
	}
	return d.decodeJSON(resp.Body, notify)
}

// decodeJSON handles the non-streaming fallback. It synthesizes the same
// notification sequence a stream would have produced, with a single delta
// per text block, so UI behavior does not depend on whether the proxy
// actually streamed.
func (d *Decoder) decodeJSON(body io.Reader, notify Notifier) ([]chat.ContentBlock, error) {
	var msg chat.MessagesResponse
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		return nil, &chat.ProtocolError{Reason: "failed to decode response document", Err: err}
	}

	blocks := make([]chat.ContentBlock, 0, len(msg.Content))
	for i, block := range msg.Content {
		notify.BlockStart(i, chat.ContentBlock{Type: block.Type, ID: block.ID, Name: block.Name})
		if block.Type == chat.BlockText && block.Text != "" {
			notify.BlockDelta(i, block.Text)
		}
		if block.Type == chat.BlockToolUse && block.Input == nil {
			block.Input = map[string]any{}
		}
		notify.BlockStop(i, block)
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// decodeSSE runs the event state machine over the stream.
func (d *Decoder) decodeSSE(ctx context.Context, body io.Reader, notify Notifier) ([]chat.ContentBlock, error) {
	var (
		blocks    []chat.ContentBlock
		acc       blockAccumulator
		eventName string
		skipped   int
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			// An event name applies to one data line only; a bare data
			// line afterwards falls back to the payload's own type.
			name := eventName
			eventName = ""
			if data == "" {
				skipped++
				continue
			}

			var payload ssePayload
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				// Malformed fragments are recovered locally, never fatal.
				skipped++
				d.logger.Debug("skipping malformed SSE payload", "error", err)
				continue
			}

			kind := name
			if kind == "" {
				kind = payload.Type
			}

			done := d.handleEvent(parseEventKind(kind), &payload, &acc, &blocks, notify)
			if done {
				d.logFinish(skipped)
				return blocks, nil
			}
		default:
			// Blank separators and comment lines carry no state.
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil || chat.IsAborted(err) {
			return nil, chat.ErrAborted
		}
		return nil, &chat.TransportError{Err: err}
	}

	// Stream closed without message_stop; whatever finished blocks we have
	// are still valid.
	if acc.open {
		d.logger.Warn("stream ended with an unfinished block", "index", acc.index, "type", acc.blockType)
	}
	d.logFinish(skipped)
	return blocks, nil
}

func (d *Decoder) logFinish(skipped int) {
	if skipped > 0 {
		d.logger.Debug("stream decoded with skipped fragments", "skipped", skipped)
	}
}

// handleEvent advances the state machine for one event. It returns true
// when the stream read loop should end.
func (d *Decoder) handleEvent(kind eventKind, payload *ssePayload, acc *blockAccumulator, blocks *[]chat.ContentBlock, notify Notifier) bool {
	switch kind {
	case eventContentBlockStart:
		if payload.ContentBlock == nil {
			return false
		}
		if acc.open {
			// The proxy guarantees stop-before-start; recover by closing
			// the dangling block so its content is not lost.
			d.finalizeBlock(acc, blocks, notify)
		}
		*acc = blockAccumulator{
			open:      true,
			index:     payload.Index,
			blockType: payload.ContentBlock.Type,
			id:        payload.ContentBlock.ID,
			name:      payload.ContentBlock.Name,
		}
		acc.text.WriteString(payload.ContentBlock.Text)
		acc.text.WriteString(payload.ContentBlock.Thinking)
		notify.BlockStart(acc.index, chat.ContentBlock{Type: acc.blockType, ID: acc.id, Name: acc.name})

	case eventContentBlockDelta:
		if payload.Delta == nil || !acc.open {
			return false
		}
		switch payload.Delta.Type {
		case "text_delta":
			acc.text.WriteString(payload.Delta.Text)
			notify.BlockDelta(acc.index, payload.Delta.Text)
		case "thinking_delta":
			acc.text.WriteString(payload.Delta.Thinking)
			notify.BlockDelta(acc.index, payload.Delta.Thinking)
		case "input_json_delta":
			// Accumulate only; tool input is rendered once complete.
			acc.inputJSON.WriteString(payload.Delta.PartialJSON)
		default:
			d.logger.Debug("ignoring unknown delta type", "delta_type", payload.Delta.Type)
		}

	case eventContentBlockStop:
		if acc.open {
			d.finalizeBlock(acc, blocks, notify)
		}

	case eventMessageStop:
		return true

	case eventMessageStart, eventMessageDelta, eventPing:
		// No content effect.

	case eventUnknown:
		d.logger.Debug("ignoring unknown event kind", "event_type", payload.Type)
	}

	return false
}

// finalizeBlock closes the open block, pushes it onto the result list and
// emits the stop notification.
func (d *Decoder) finalizeBlock(acc *blockAccumulator, blocks *[]chat.ContentBlock, notify Notifier) {
	var block chat.ContentBlock

	switch acc.blockType {
	case chat.BlockToolUse:
		block = chat.ContentBlock{
			Type:  chat.BlockToolUse,
			ID:    acc.id,
			Name:  acc.name,
			Input: parseToolInput(acc.inputJSON.String(), d.logger),
		}
	case chat.BlockThinking:
		block = chat.ContentBlock{Type: chat.BlockThinking, Thinking: acc.text.String()}
	default:
		block = chat.ContentBlock{Type: chat.BlockText, Text: acc.text.String()}
	}

	*blocks = append(*blocks, block)
	notify.BlockStop(acc.index, block)
	acc.open = false
}

// parseToolInput parses the accumulated partial-JSON buffer. A buffer that
// does not reassemble into valid JSON yields an empty input map rather
// than failing the turn.
func parseToolInput(raw string, logger *slog.Logger) map[string]any {
	input := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return input
	}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		logger.Warn("tool input did not reassemble into valid JSON, defaulting to empty input",
			"error", err, "size", len(raw))
		return map[string]any{}
	}
	return input
}
