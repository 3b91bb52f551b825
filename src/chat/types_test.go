package chat

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "plain text shorthand",
			msg:  UserText("hello there"),
		},
		{
			name: "assistant with tool use",
			msg: AssistantBlocks([]ContentBlock{
				{Type: BlockText, Text: "let me check"},
				{Type: BlockToolUse, ID: "toolu_01", Name: "list_directory", Input: map[string]any{"path": "/tmp"}},
			}),
		},
		{
			name: "tool result turn",
			msg: ToolResults([]ContentBlock{
				ToolResultBlock("toolu_01", "file.txt\n", false),
				ToolResultBlock("toolu_02", "permission denied", true),
			}),
		},
		{
			name: "thinking block",
			msg: AssistantBlocks([]ContentBlock{
				{Type: BlockThinking, Thinking: "the user wants a listing"},
				{Type: BlockText, Text: "here you go"},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)

			var got Message
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestMessageMarshalStringShorthand(t *testing.T) {
	data, err := json.Marshal(UserText("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(data))
}

func TestMessageToolUses(t *testing.T) {
	msg := AssistantBlocks([]ContentBlock{
		{Type: BlockText, Text: "running two tools"},
		{Type: BlockToolUse, ID: "a", Name: "bash", Input: map[string]any{"command": "ls"}},
		{Type: BlockToolUse, ID: "b", Name: "read_file", Input: map[string]any{"path": "x"}},
	})

	uses := msg.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "a", uses[0].ID)
	assert.Equal(t, "b", uses[1].ID)

	assert.Empty(t, UserText("no tools").ToolUses())
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short prompt", DeriveTitle("short prompt"))

	long := strings.Repeat("x", 80)
	title := DeriveTitle(long)
	assert.Len(t, []rune(title), 60)
	assert.True(t, strings.HasSuffix(title, "..."))

	exact := strings.Repeat("y", 60)
	assert.Equal(t, exact, DeriveTitle(exact))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "abc", UserText("abc").PlainText())

	msg := AssistantBlocks([]ContentBlock{
		{Type: BlockThinking, Thinking: "hmm"},
		{Type: BlockText, Text: "part one "},
		{Type: BlockText, Text: "part two"},
	})
	assert.Equal(t, "part one part two", msg.PlainText())
}
