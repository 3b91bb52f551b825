// Package chat defines the conversation data model shared by the stream
// decoder, the tool sandbox and the agentic loop engine.
package chat

import (
	"encoding/json"
	"fmt"
	"time"

	jsonschema "github.com/swaggest/jsonschema-go"
)

// Roles for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is a tagged union over the block types emitted by the model
// and fed back to it. Which fields are meaningful depends on Type.
type ContentBlock struct {
	Type string `json:"type"`

	// For text blocks.
	Text string `json:"text,omitempty"`

	// For thinking blocks. Never mixed with Text in the same block.
	Thinking string `json:"thinking,omitempty"`

	// For tool_use blocks. ID correlates with a later tool_result.
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// For tool_result blocks.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolResultBlock builds a tool_result block answering the given tool_use id.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Type:      BlockToolResult,
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}
}

// Message is a single conversation turn. Content is either a plain string
// (shorthand for one text block) or an ordered list of content blocks; the
// two forms serialize differently and both must round-trip.
type Message struct {
	Role string
	// Text is set when the message was a plain-string turn.
	Text string
	// Blocks is set when the message carries structured content.
	Blocks []ContentBlock
}

// UserText builds a plain-text user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantBlocks builds an assistant message from completed blocks.
func AssistantBlocks(blocks []ContentBlock) Message {
	return Message{Role: RoleAssistant, Blocks: blocks}
}

// ToolResults builds the synthetic user message that feeds tool outcomes
// back to the model as the next turn.
func ToolResults(blocks []ContentBlock) Message {
	return Message{Role: RoleUser, Blocks: blocks}
}

// ToolUses returns the tool_use blocks of the message in emission order.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// PlainText returns the human-readable text of the message: the string
// shorthand if present, otherwise the concatenated text blocks.
func (m Message) PlainText() string {
	if m.Text != "" {
		return m.Text
	}
	var out string
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON emits the string shorthand for plain turns and the block
// array otherwise.
func (m Message) MarshalJSON() ([]byte, error) {
	var content any
	if m.Blocks != nil {
		content = m.Blocks
	} else {
		content = m.Text
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: raw})
}

// UnmarshalJSON accepts both content forms.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Text = ""
	m.Blocks = nil
	if len(w.Content) == 0 {
		return nil
	}
	if w.Content[0] == '"' {
		return json.Unmarshal(w.Content, &m.Text)
	}
	if err := json.Unmarshal(w.Content, &m.Blocks); err != nil {
		return fmt.Errorf("message content is neither string nor block list: %w", err)
	}
	return nil
}

// Conversation is the durable transcript owned by the store. The engine
// holds a working copy while a loop is in flight and persists after every
// mutation.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the listing shape returned by the store.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const titleMaxLen = 60

// DeriveTitle produces a conversation title from the first user turn,
// truncated to 60 characters with an ellipsis.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleMaxLen {
		return text
	}
	return string(runes[:titleMaxLen-3]) + "..."
}

// ToolSchema describes one tool to the model. It is configuration data
// attached to the request, not part of the sandbox runtime contract.
type ToolSchema struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// MessagesRequest is the POST body sent to the inference proxy.
type MessagesRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Stream    bool         `json:"stream"`
	System    string       `json:"system,omitempty"`
	Tools     []ToolSchema `json:"tools,omitempty"`
	Messages  []Message    `json:"messages"`
}

// MessagesResponse is the plain-JSON (non-streaming) response shape.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
}
