// Package orchids relays canonical requests to the Orchids chat API, an
// OpenAI-compatible SSE backend with bearer auth.
package orchids

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"

	"claude-relay/model"
	"claude-relay/relay/adaptor"
	"claude-relay/relay/decoder"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

const (
	primaryEndpoint  = "https://api.orchids.app"
	fallbackEndpoint = "https://fallback.orchids.app"
)

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Parameters  any    `json:"parameters"`
	} `json:"function"`
}

type wireBody struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Stream      bool          `json:"stream"`
}

// Adaptor implements the Orchids backend.
type Adaptor struct{}

func (a *Adaptor) Provider() string { return model.ProviderOrchids }

func (a *Adaptor) FallbackURL() string { return fallbackEndpoint + "/v1/chat/completions" }

func (a *Adaptor) Translate(ctx context.Context, req *relaymodel.ClaudeRequest, m *meta.Meta) (*adaptor.WireRequest, error) {
	m.ActualModel = req.Model

	body := wireBody{
		Model:       req.Model,
		Messages:    convertMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
		Tools:       convertTools(req.Tools),
		// Upstream always streams; the relay assembles non-streaming replies.
		Stream: true,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal orchids body")
	}

	base := primaryEndpoint
	if m.Account.BaseURL != "" {
		base = m.Account.BaseURL
	}
	url := base + "/v1/chat/completions"
	if m.UseFallback {
		url = a.FallbackURL()
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+m.Account.Key)
	header.Set("Accept", "text/event-stream")

	return &adaptor.WireRequest{
		Method: http.MethodPost,
		URL:    url,
		Header: header,
		Body:   raw,
	}, nil
}

func (a *Adaptor) NewDecoder(m *meta.Meta) decoder.StreamDecoder {
	return newStreamDecoder()
}

// convertMessages flattens canonical blocks into the chat-completions shape:
// tool_use becomes assistant tool_calls, tool_result becomes a tool-role
// message keyed by tool_call_id.
func convertMessages(req *relaymodel.ClaudeRequest) []wireMessage {
	var out []wireMessage
	if system := req.SystemText(); system != "" {
		out = append(out, wireMessage{Role: "system", Content: system})
	}

	for _, msg := range relaymodel.MergeAdjacentRoles(req.Messages) {
		current := wireMessage{Role: msg.Role}
		for _, block := range msg.Blocks() {
			switch block.Type {
			case relaymodel.ContentTypeText:
				current.Content += block.Text
			case relaymodel.ContentTypeToolUse:
				args, err := json.Marshal(block.Input)
				if err != nil {
					args = []byte("{}")
				}
				current.ToolCalls = append(current.ToolCalls, wireToolCall{
					ID:   block.ID,
					Type: "function",
					Function: wireFunction{
						Name:      block.Name,
						Arguments: string(args),
					},
				})
			case relaymodel.ContentTypeToolResult:
				// Tool results are standalone messages on this wire; emit any
				// accumulated content first to preserve ordering.
				if current.Content != "" || len(current.ToolCalls) > 0 {
					out = append(out, current)
					current = wireMessage{Role: msg.Role}
				}
				out = append(out, wireMessage{
					Role:       "tool",
					ToolCallID: block.ToolUseID,
					Content:    toolResultText(block.Content),
				})
			}
		}
		if current.Content != "" || len(current.ToolCalls) > 0 {
			out = append(out, current)
		}
	}
	return out
}

func toolResultText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func convertTools(tools []relaymodel.Tool) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, tool := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = tool.Name
		wt.Function.Description = tool.Description
		wt.Function.Parameters = tool.InputSchema
		if wt.Function.Parameters == nil {
			wt.Function.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, wt)
	}
	return out
}
