package controller

import (
	"fmt"

	relaymodel "claude-relay/relay/model"
)

// Compression is re-derived from the original request at every level, so a
// higher level always produces a payload no larger than a lower one.
var compressionParams = [...]struct {
	keepTail int
	textCap  int
}{
	1: {keepTail: 6, textCap: 4000},
	2: {keepTail: 4, textCap: 2000},
	3: {keepTail: 2, textCap: 1000},
}

// compressRequest shrinks the conversation for a retry after a size
// rejection: the first message and the last keepTail messages survive, the
// middle collapses into a one-line notice, and every surviving text or
// tool_result string is truncated to the level's ceiling.
func compressRequest(req *relaymodel.ClaudeRequest, level int) *relaymodel.ClaudeRequest {
	if level < 1 {
		return req
	}
	if level > len(compressionParams)-1 {
		level = len(compressionParams) - 1
	}
	params := compressionParams[level]

	out := *req
	messages := req.Messages
	if dropped := len(messages) - 1 - params.keepTail; dropped > 0 {
		kept := make([]relaymodel.Message, 0, params.keepTail+2)
		kept = append(kept, messages[0])
		kept = append(kept, relaymodel.Message{
			Role: relaymodel.RoleUser,
			Content: fmt.Sprintf(
				"[%d earlier messages omitted to fit the context window]", dropped),
		})
		kept = append(kept, messages[len(messages)-params.keepTail:]...)
		messages = kept
	}

	out.Messages = make([]relaymodel.Message, len(messages))
	for i := range messages {
		out.Messages[i] = truncateMessage(messages[i], params.textCap)
	}
	return &out
}

func truncateMessage(msg relaymodel.Message, limit int) relaymodel.Message {
	if s, ok := msg.Content.(string); ok {
		msg.Content = truncateText(s, limit)
		return msg
	}
	blocks := msg.Blocks()
	if len(blocks) == 0 {
		return msg
	}
	trimmed := make([]relaymodel.ContentBlock, len(blocks))
	for i, block := range blocks {
		switch block.Type {
		case relaymodel.ContentTypeText:
			block.Text = truncateText(block.Text, limit)
		case relaymodel.ContentTypeToolResult:
			if s, ok := block.Content.(string); ok {
				block.Content = truncateText(s, limit)
			}
		case relaymodel.ContentTypeThinking:
			block.Thinking = truncateText(block.Thinking, limit)
		}
		trimmed[i] = block
	}
	msg.Content = trimmed
	return msg
}

func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}
