package kiro

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"claude-relay/model"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

func TestSplitConversationBasic(t *testing.T) {
	messages := []relaymodel.Message{
		{Role: relaymodel.RoleUser, Content: "first question"},
		{Role: relaymodel.RoleAssistant, Content: "first answer"},
		{Role: relaymodel.RoleUser, Content: "second question"},
	}

	history, current, results := splitConversation(messages, "claude-sonnet-4")
	require.Len(t, history, 2)
	require.Equal(t, "first question", history[0].UserInputMessage.Content)
	require.Equal(t, "first answer", history[1].AssistantResponseMessage.Content)
	require.Equal(t, "second question", current.Content)
	require.Equal(t, "claude-sonnet-4", current.ModelID)
	require.Equal(t, defaultOrigin, current.Origin)
	require.Empty(t, results)
}

func TestSplitConversationToolResultsOnCurrentTurn(t *testing.T) {
	messages := []relaymodel.Message{
		{Role: relaymodel.RoleUser, Content: "run the tool"},
		{Role: relaymodel.RoleAssistant, Content: []relaymodel.ContentBlock{
			{Type: relaymodel.ContentTypeToolUse, ID: "toolu_1", Name: "read_file",
				Input: map[string]any{"path": "a.txt"}},
		}},
		{Role: relaymodel.RoleUser, Content: []relaymodel.ContentBlock{
			{Type: relaymodel.ContentTypeToolResult, ToolUseID: "toolu_1", Content: "contents"},
		}},
	}

	history, _, results := splitConversation(messages, "claude-sonnet-4")
	require.Len(t, history, 2)
	require.Len(t, history[1].AssistantResponseMessage.ToolUses, 1)
	require.Equal(t, "toolu_1", history[1].AssistantResponseMessage.ToolUses[0].ToolUseID)

	require.Len(t, results, 1)
	require.Equal(t, "toolu_1", results[0].ToolUseID)
	require.Equal(t, "success", results[0].Status)
	require.Equal(t, "contents", results[0].Content[0].Text)
}

func TestSplitConversationFoldsHistoryToolResults(t *testing.T) {
	messages := []relaymodel.Message{
		{Role: relaymodel.RoleUser, Content: []relaymodel.ContentBlock{
			{Type: relaymodel.ContentTypeToolResult, ToolUseID: "toolu_0", Content: "old output"},
		}},
		{Role: relaymodel.RoleAssistant, Content: "done"},
		{Role: relaymodel.RoleUser, Content: "next"},
	}

	history, _, results := splitConversation(messages, "claude-sonnet-4")
	require.Empty(t, results)
	require.Contains(t, history[0].UserInputMessage.Content, "[Tool result toolu_0]: old output")
}

func TestSplitConversationTrailingAssistantTurn(t *testing.T) {
	messages := []relaymodel.Message{
		{Role: relaymodel.RoleUser, Content: "hello"},
		{Role: relaymodel.RoleAssistant, Content: "hi"},
	}

	history, current, _ := splitConversation(messages, "claude-sonnet-4")
	// The last user turn becomes current; the assistant turn after it stays
	// in history so the service sees the full exchange.
	require.Equal(t, "hello", current.Content)
	require.Len(t, history, 1)
	require.Equal(t, "hi", history[0].AssistantResponseMessage.Content)
}

func TestTranslateDeliversOverflowNotesOnEveryTurn(t *testing.T) {
	a := &Adaptor{}
	req := &relaymodel.ClaudeRequest{
		Model:  "claude-sonnet-4",
		System: "act carefully",
		Tools: []relaymodel.Tool{{
			Name:        "big_tool",
			Description: strings.Repeat("d", maxToolDescLen+1),
		}},
		Messages: []relaymodel.Message{
			{Role: relaymodel.RoleUser, Content: "turn one"},
			{Role: relaymodel.RoleAssistant, Content: "ack"},
			{Role: relaymodel.RoleUser, Content: "turn two"},
		},
	}
	m := &meta.Meta{Account: &model.Account{
		Key: `{"accessToken":"tok","refreshToken":"r"}`,
	}}

	wire, err := a.Translate(context.Background(), req, m)
	require.NoError(t, err)

	var body payload
	require.NoError(t, json.Unmarshal(wire.Body, &body))

	// With history present the system prompt stays suppressed, but the
	// relocated tool description the exposed specs point at must still ride
	// the current turn.
	content := body.ConversationState.CurrentMessage.UserInputMessage.Content
	require.NotContains(t, content, "--- SYSTEM PROMPT ---")
	require.Contains(t, content, "## Tool: big_tool")
	require.Contains(t, content, "turn two")

	spec := body.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext.Tools[0].ToolSpecification
	require.Contains(t, spec.Description, "See the system prompt section")
}

func TestBuildAssistantMessageNeverEmpty(t *testing.T) {
	msg := relaymodel.Message{Role: relaymodel.RoleAssistant, Content: []relaymodel.ContentBlock{}}
	out := buildAssistantMessage(&msg)
	require.Equal(t, " ", out.Content)
}

func TestToolResultTextBlockList(t *testing.T) {
	content := []any{
		map[string]any{"type": "text", "text": "part one "},
		map[string]any{"type": "text", "text": "part two"},
		map[string]any{"type": "image"},
	}
	require.Equal(t, "part one part two", toolResultText(content))
}
