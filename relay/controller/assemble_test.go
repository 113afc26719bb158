package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	relaymodel "claude-relay/relay/model"
)

func TestCollectorAssemblesMessage(t *testing.T) {
	events := []relaymodel.StreamEvent{
		{Type: relaymodel.EventMessageStart, Message: &relaymodel.ClaudeResponse{
			ID: "msg_1", Type: "message", Role: relaymodel.RoleAssistant,
			Model: "claude-sonnet-4", Usage: relaymodel.Usage{InputTokens: 12},
		}},
		{Type: relaymodel.EventContentBlockStart, Index: relaymodel.IndexOf(0),
			ContentBlock: &relaymodel.ContentBlock{Type: relaymodel.ContentTypeText}},
		{Type: relaymodel.EventContentBlockDelta, Index: relaymodel.IndexOf(0),
			Delta: &relaymodel.EventDelta{Type: relaymodel.DeltaTypeText, Text: "Checking the weather."}},
		{Type: relaymodel.EventContentBlockStop, Index: relaymodel.IndexOf(0)},
		{Type: relaymodel.EventContentBlockStart, Index: relaymodel.IndexOf(1),
			ContentBlock: &relaymodel.ContentBlock{Type: relaymodel.ContentTypeToolUse, ID: "toolu_1", Name: "get_weather"}},
		{Type: relaymodel.EventContentBlockDelta, Index: relaymodel.IndexOf(1),
			Delta: &relaymodel.EventDelta{Type: relaymodel.DeltaTypeInputJSON, PartialJSON: `{"city":`}},
		{Type: relaymodel.EventContentBlockDelta, Index: relaymodel.IndexOf(1),
			Delta: &relaymodel.EventDelta{Type: relaymodel.DeltaTypeInputJSON, PartialJSON: `"SF"}`}},
		{Type: relaymodel.EventContentBlockStop, Index: relaymodel.IndexOf(1)},
		{Type: relaymodel.EventMessageDelta,
			Delta: &relaymodel.EventDelta{StopReason: relaymodel.StopReasonToolUse},
			Usage: &relaymodel.Usage{OutputTokens: 30}},
		{Type: relaymodel.EventMessageStop},
	}

	c := NewCollector()
	for _, ev := range events {
		c.Push(ev)
	}
	resp, errObj := c.Response()
	require.Nil(t, errObj)

	require.Equal(t, "msg_1", resp.ID)
	require.Equal(t, relaymodel.StopReasonToolUse, resp.StopReason)
	require.Equal(t, 12, resp.Usage.InputTokens)
	require.Equal(t, 30, resp.Usage.OutputTokens)

	require.Len(t, resp.Content, 2)
	require.Equal(t, "Checking the weather.", resp.Content[0].Text)
	require.Equal(t, relaymodel.ContentTypeToolUse, resp.Content[1].Type)
	require.Equal(t, "toolu_1", resp.Content[1].ID)
	require.Equal(t, map[string]any{"city": "SF"}, resp.Content[1].Input)
}

func TestCollectorSurfacesStreamError(t *testing.T) {
	c := NewCollector()
	c.Push(relaymodel.StreamEvent{Type: relaymodel.EventError,
		Error: &relaymodel.Error{Message: "boom", Type: relaymodel.ErrTypeAPI}})

	resp, errObj := c.Response()
	require.Nil(t, resp)
	require.Equal(t, "boom", errObj.Message)
}

func TestCollectorEmptyStream(t *testing.T) {
	resp, errObj := NewCollector().Response()
	require.Nil(t, errObj)
	require.NotNil(t, resp.Content)
	require.Empty(t, resp.Content)
}
