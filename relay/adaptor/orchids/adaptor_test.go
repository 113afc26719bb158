package orchids

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"claude-relay/model"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

func TestTranslateAlwaysStreamsUpstream(t *testing.T) {
	a := &Adaptor{}
	req := &relaymodel.ClaudeRequest{
		Model:     "claude-sonnet-4",
		MaxTokens: 128,
		Messages:  []relaymodel.Message{{Role: relaymodel.RoleUser, Content: "hi"}},
	}
	m := &meta.Meta{Account: &model.Account{Key: "sk-test"}}

	// No stream flag on the client request: the upstream call still streams,
	// the relay assembles the non-streaming reply itself.
	wire, err := a.Translate(context.Background(), req, m)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", wire.Header.Get("Accept"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(wire.Body, &body))
	require.Equal(t, true, body["stream"])
}

func TestTranslateToolOrdering(t *testing.T) {
	req := &relaymodel.ClaudeRequest{
		Model: "claude-sonnet-4",
		Messages: []relaymodel.Message{
			{Role: relaymodel.RoleAssistant, Content: []relaymodel.ContentBlock{
				{Type: relaymodel.ContentTypeToolUse, ID: "call_1", Name: "f", Input: map[string]any{"x": 1}},
			}},
			{Role: relaymodel.RoleUser, Content: []relaymodel.ContentBlock{
				{Type: relaymodel.ContentTypeToolResult, ToolUseID: "call_1", Content: "ok"},
				{Type: relaymodel.ContentTypeText, Text: "next"},
			}},
		},
	}

	messages := convertMessages(req)
	require.Len(t, messages, 3)
	require.Equal(t, "assistant", messages[0].Role)
	require.Equal(t, "call_1", messages[0].ToolCalls[0].ID)
	require.Equal(t, "tool", messages[1].Role)
	require.Equal(t, "call_1", messages[1].ToolCallID)
	require.Equal(t, "user", messages[2].Role)
	require.Equal(t, "next", messages[2].Content)
}
