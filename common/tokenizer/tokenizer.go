// Package tokenizer estimates token counts for requests whose backends never
// report input usage. Counts are estimates: the upstream tokenizers are not
// public, so cl100k_base is used as a stable approximation.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"claude-relay/common/logger"
	relaymodel "claude-relay/relay/model"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		var err error
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Logger.Warn("tokenizer unavailable, falling back to byte estimate")
		}
	})
	return enc
}

// CountText returns the token count of a text fragment.
func CountText(text string) int {
	if text == "" {
		return 0
	}
	if e := encoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	// Rough fallback: 4 bytes per token.
	return (len(text) + 3) / 4
}

// EstimateRequest approximates the input token count of a canonical request:
// system prompt, message text, and a flat per-message overhead.
func EstimateRequest(req *relaymodel.ClaudeRequest) int {
	const perMessageOverhead = 4

	total := CountText(req.SystemText())
	for i := range req.Messages {
		total += perMessageOverhead
		for _, block := range req.Messages[i].Blocks() {
			switch block.Type {
			case relaymodel.ContentTypeText:
				total += CountText(block.Text)
			case relaymodel.ContentTypeToolResult:
				if s, ok := block.Content.(string); ok {
					total += CountText(s)
				}
			case relaymodel.ContentTypeToolUse:
				total += perMessageOverhead
			}
		}
	}
	for _, tool := range req.Tools {
		total += CountText(tool.Name) + CountText(tool.Description)
	}
	return total
}
