package proxyclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/src/chat"
)

// recordingNotifier captures the notification sequence for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	deltas []string
	stops  []chat.ContentBlock
}

func (r *recordingNotifier) BlockStart(index int, block chat.ContentBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("start:%d:%s", index, block.Type))
}

func (r *recordingNotifier) BlockDelta(index int, fragment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("delta:%d", index))
	r.deltas = append(r.deltas, fragment)
}

func (r *recordingNotifier) BlockStop(index int, block chat.ContentBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("stop:%d:%s", index, block.Type))
	r.stops = append(r.stops, block)
}

func sseResponse(t *testing.T, events ...string) *http.Response {
	t.Helper()
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e)
		b.WriteString("\n\n")
	}
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       io.NopCloser(strings.NewReader(b.String())),
	}
	return resp
}

func event(name, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s", name, data)
}

func TestDecodeTextBlockAcrossDeltas(t *testing.T) {
	// The final text must equal the concatenation of the deltas regardless
	// of how the stream was chunked.
	chunks := []string{"Hel", "lo", ", ", "wor", "ld"}

	events := []string{
		event("message_start", `{"type":"message_start"}`),
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`),
	}
	for _, c := range chunks {
		events = append(events, event("content_block_delta",
			fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, c)))
	}
	events = append(events,
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
		event("message_stop", `{"type":"message_stop"}`),
	)

	notify := &recordingNotifier{}
	blocks, err := NewDecoder(nil).Decode(context.Background(), sseResponse(t, events...), notify)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, chat.BlockText, blocks[0].Type)
	assert.Equal(t, "Hello, world", blocks[0].Text)
	assert.Equal(t, chunks, notify.deltas)
	assert.Equal(t, "start:0:text", notify.events[0])
	assert.Equal(t, "stop:0:text", notify.events[len(notify.events)-1])
}

func TestDecodeToolUseBlock(t *testing.T) {
	events := []string{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_9","name":"list_directory"}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"pa"}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"th\":\"/tmp/demo\"}"}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
		event("message_stop", `{"type":"message_stop"}`),
	}

	notify := &recordingNotifier{}
	blocks, err := NewDecoder(nil).Decode(context.Background(), sseResponse(t, events...), notify)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	b := blocks[0]
	assert.Equal(t, chat.BlockToolUse, b.Type)
	assert.Equal(t, "toolu_9", b.ID)
	assert.Equal(t, "list_directory", b.Name)
	assert.Equal(t, map[string]any{"path": "/tmp/demo"}, b.Input)

	// Input deltas produce no per-delta notification.
	assert.Empty(t, notify.deltas)
	// The stop notification already carries the parsed input.
	require.Len(t, notify.stops, 1)
	assert.Equal(t, b.Input, notify.stops[0].Input)
}

func TestDecodeInvalidToolInputDefaultsToEmptyMap(t *testing.T) {
	events := []string{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"bash"}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"command\": not json"}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
		event("message_stop", `{"type":"message_stop"}`),
	}

	blocks, err := NewDecoder(nil).Decode(context.Background(), sseResponse(t, events...), NopNotifier{})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, map[string]any{}, blocks[0].Input)
}

func TestDecodeThinkingThenText(t *testing.T) {
	events := []string{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"pondering"}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
		event("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"text"}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"answer"}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":1}`),
		event("message_stop", `{"type":"message_stop"}`),
	}

	blocks, err := NewDecoder(nil).Decode(context.Background(), sseResponse(t, events...), NopNotifier{})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, chat.BlockThinking, blocks[0].Type)
	assert.Equal(t, "pondering", blocks[0].Thinking)
	assert.Empty(t, blocks[0].Text)
	assert.Equal(t, "answer", blocks[1].Text)
}

func TestDecodeSkipsMalformedAndUnknownEvents(t *testing.T) {
	events := []string{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`),
		event("content_block_delta", `this is not json`),
		"data:",
		event("brand_new_event", `{"type":"brand_new_event","index":0}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"still fine"}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
		event("message_stop", `{"type":"message_stop"}`),
	}

	blocks, err := NewDecoder(nil).Decode(context.Background(), sseResponse(t, events...), NopNotifier{})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "still fine", blocks[0].Text)
}

func TestDecodeBareDataLinesFallBackToPayloadType(t *testing.T) {
	// A stream that stops sending event: lines mid-way must dispatch the
	// bare data lines by their payload type, not under the last named
	// event.
	events := []string{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`),
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"no name"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_stop"}`,
	}

	notify := &recordingNotifier{}
	blocks, err := NewDecoder(nil).Decode(context.Background(), sseResponse(t, events...), notify)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, "no name", blocks[0].Text)
	assert.Equal(t, []string{"start:0:text", "delta:0", "stop:0:text"}, notify.events)
}

func TestDecodePlainJSONFallback(t *testing.T) {
	body := `{
		"id": "msg_1",
		"role": "assistant",
		"content": [
			{"type": "text", "text": "hello"},
			{"type": "tool_use", "id": "toolu_2", "name": "grep", "input": {"pattern": "x"}}
		]
	}`
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}

	notify := &recordingNotifier{}
	blocks, err := NewDecoder(nil).Decode(context.Background(), resp, notify)
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	assert.Equal(t, "hello", blocks[0].Text)
	assert.Equal(t, "grep", blocks[1].Name)

	// Same notification shape as a real stream: one delta per text block.
	assert.Equal(t, []string{
		"start:0:text", "delta:0", "stop:0:text",
		"start:1:tool_use", "stop:1:tool_use",
	}, notify.events)
	assert.Equal(t, []string{"hello"}, notify.deltas)
}

func TestDecodeUpstreamError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"error":"proxy not ready"}`)),
	}

	_, err := NewDecoder(nil).Decode(context.Background(), resp, NopNotifier{})
	var upstream *chat.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "proxy not ready")
}

func TestDecodeAbortMidStream(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		io.WriteString(w, event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)+"\n\n")
		io.WriteString(w, event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`)+"\n\n")
		fl.Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	notify := &recordingNotifier{}
	done := make(chan error, 1)
	go func() {
		_, decodeErr := NewDecoder(nil).Decode(ctx, resp, notify)
		done <- decodeErr
	}()

	<-started
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case decodeErr := <-done:
		assert.True(t, chat.IsAborted(decodeErr), "expected aborted, got %v", decodeErr)
	case <-time.After(5 * time.Second):
		t.Fatal("decoder did not return after abort")
	}

	// No block ever completed.
	assert.Empty(t, notify.stops)
}

func TestDecodeStreamWithoutMessageStopKeepsFinishedBlocks(t *testing.T) {
	events := []string{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"done"}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
	}

	blocks, err := NewDecoder(nil).Decode(context.Background(), sseResponse(t, events...), NopNotifier{})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "done", blocks[0].Text)
}
