// Package kiro relays canonical requests to the CodeWhisperer-style
// assistant API. Requests carry a conversation-state envelope with bearer
// auth; responses stream back either as binary event-stream frames or, in
// raw mode, as bare JSON objects embedded in the body.
package kiro

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"

	"claude-relay/common/config"
	"claude-relay/common/random"
	"claude-relay/model"
	"claude-relay/relay/adaptor"
	"claude-relay/relay/decoder"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

const (
	// Streaming chat endpoint; the management-plane endpoint doubles as the
	// documented fallback since it serves the same generate operation.
	primaryEndpoint  = "https://q.us-east-1.amazonaws.com"
	fallbackEndpoint = "https://codewhisperer.us-east-1.amazonaws.com"

	targetGenerateChat = "AmazonCodeWhispererStreamingService.GenerateAssistantResponse"
	contentType        = "application/x-amz-json-1.0"
	acceptEventStream  = "application/vnd.amazon.eventstream"

	defaultOrigin = "AI_EDITOR"
)

// Wire payload structs. Field order matters: the service is sensitive to JSON
// key order in the conversation-state envelope.

type payload struct {
	ConversationState conversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
	InferenceConfig   *inferenceConfig  `json:"inferenceConfig,omitempty"`
}

type inferenceConfig struct {
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
}

type conversationState struct {
	ChatTriggerType string           `json:"chatTriggerType"`
	ConversationID  string           `json:"conversationId"`
	CurrentMessage  currentMessage   `json:"currentMessage"`
	History         []historyMessage `json:"history,omitempty"`
}

type currentMessage struct {
	UserInputMessage userInputMessage `json:"userInputMessage"`
}

type historyMessage struct {
	UserInputMessage         *userInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *assistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

type userInputMessage struct {
	Content                 string                   `json:"content"`
	ModelID                 string                   `json:"modelId"`
	Origin                  string                   `json:"origin"`
	Images                  []image                  `json:"images,omitempty"`
	UserInputMessageContext *userInputMessageContext `json:"userInputMessageContext,omitempty"`
}

type userInputMessageContext struct {
	ToolResults []toolResult  `json:"toolResults,omitempty"`
	Tools       []toolWrapper `json:"tools,omitempty"`
}

type toolResult struct {
	Content   []textContent `json:"content"`
	Status    string        `json:"status"`
	ToolUseID string        `json:"toolUseId"`
}

type textContent struct {
	Text string `json:"text"`
}

type toolWrapper struct {
	ToolSpecification toolSpecification `json:"toolSpecification"`
}

type toolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema inputSchema `json:"inputSchema"`
}

type inputSchema struct {
	JSON any `json:"json"`
}

type assistantResponseMessage struct {
	Content  string    `json:"content"`
	ToolUses []toolUse `json:"toolUses,omitempty"`
}

type toolUse struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type image struct {
	Format string      `json:"format"`
	Source imageSource `json:"source"`
}

type imageSource struct {
	Bytes string `json:"bytes"`
}

// Adaptor implements the Kiro/CodeWhisperer backend.
type Adaptor struct{}

func (a *Adaptor) Provider() string { return model.ProviderKiro }

func (a *Adaptor) FallbackURL() string { return fallbackEndpoint + "/generateAssistantResponse" }

func (a *Adaptor) Translate(ctx context.Context, req *relaymodel.ClaudeRequest, m *meta.Meta) (*adaptor.WireRequest, error) {
	cred, err := refreshIfExpiring(ctx, m.Account)
	if err != nil {
		return nil, errors.Wrap(err, "refresh kiro credential")
	}

	m.ActualModel = req.Model

	tools, toolSystemNotes := convertTools(req.Tools)

	messages := relaymodel.MergeAdjacentRoles(req.Messages)
	history, current, results := splitConversation(messages, req.Model)

	var prefix string
	if system := req.SystemText(); system != "" && len(history) == 0 {
		// System prompt rides in the first user turn; the wire format has no
		// dedicated slot for it.
		prefix = "--- SYSTEM PROMPT ---\n" + system + "\n--- END SYSTEM PROMPT ---\n\n"
	}
	if toolSystemNotes != "" {
		// Relocated tool descriptions must reach the model on every turn:
		// the exposed tool specs point at this section, and unlike the
		// system prompt the service retains no memory of it across requests.
		prefix += toolSystemNotes + "\n\n"
	}
	current.Content = prefix + current.Content
	if len(tools) > 0 || len(results) > 0 {
		current.UserInputMessageContext = &userInputMessageContext{
			Tools:       tools,
			ToolResults: results,
		}
	}

	body := payload{
		ConversationState: conversationState{
			ChatTriggerType: "MANUAL",
			ConversationID:  random.GetUUID(),
			CurrentMessage:  currentMessage{UserInputMessage: *current},
			History:         history,
		},
		ProfileArn: cred.ProfileArn,
	}
	if req.MaxTokens > 0 || req.Temperature != nil || req.TopP != nil {
		body.InferenceConfig = &inferenceConfig{
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal kiro payload")
	}

	endpoint := primaryEndpoint + "/generateAssistantResponse"
	if m.Account.BaseURL != "" {
		endpoint = m.Account.BaseURL + "/generateAssistantResponse"
	}
	if m.UseFallback {
		endpoint = a.FallbackURL()
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("X-Amz-Target", targetGenerateChat)
	header.Set("Accept", acceptEventStream)
	header.Set("Authorization", "Bearer "+cred.AccessToken)

	return &adaptor.WireRequest{
		Method: http.MethodPost,
		URL:    endpoint,
		Header: header,
		Body:   raw,
	}, nil
}

// NewDecoder selects the transport decoding mode at construction: binary
// event-stream framing by default, raw embedded-JSON scanning behind the
// feature flag.
func (a *Adaptor) NewDecoder(m *meta.Meta) decoder.StreamDecoder {
	if config.KiroRawStreamMode {
		return newRawDecoder()
	}
	return newBinaryDecoder()
}

// splitConversation folds every turn but the last user turn into wire
// history, and builds the current message plus its tool results from the
// trailing user turn.
func splitConversation(messages []relaymodel.Message, modelID string) (history []historyMessage, current *userInputMessage, results []toolResult) {
	last := len(messages) - 1
	for last >= 0 && messages[last].Role != relaymodel.RoleUser {
		last--
	}

	for i, msg := range messages {
		if i == last {
			break
		}
		switch msg.Role {
		case relaymodel.RoleUser:
			u, rs := buildUserMessage(&msg, modelID)
			// History slots cannot carry tool results; fold them into content.
			for _, r := range rs {
				for _, c := range r.Content {
					u.Content += "\n[Tool result " + r.ToolUseID + "]: " + c.Text
				}
			}
			history = append(history, historyMessage{UserInputMessage: u})
		case relaymodel.RoleAssistant:
			history = append(history, historyMessage{AssistantResponseMessage: buildAssistantMessage(&msg)})
		}
	}

	if last < 0 {
		return history, &userInputMessage{ModelID: modelID, Origin: defaultOrigin}, nil
	}
	current, results = buildUserMessage(&messages[last], modelID)

	// Assistant turns after the last user turn still belong to history.
	for i := last + 1; i < len(messages); i++ {
		if messages[i].Role == relaymodel.RoleAssistant {
			history = append(history, historyMessage{AssistantResponseMessage: buildAssistantMessage(&messages[i])})
		}
	}
	return history, current, results
}

func buildUserMessage(msg *relaymodel.Message, modelID string) (*userInputMessage, []toolResult) {
	u := &userInputMessage{ModelID: modelID, Origin: defaultOrigin}
	var results []toolResult
	for _, block := range msg.Blocks() {
		switch block.Type {
		case relaymodel.ContentTypeText:
			if u.Content != "" {
				u.Content += "\n"
			}
			u.Content += block.Text
		case relaymodel.ContentTypeImage:
			if block.Source != nil {
				u.Images = append(u.Images, image{
					Format: formatFromMediaType(block.Source.MediaType),
					Source: imageSource{Bytes: block.Source.Data},
				})
			}
		case relaymodel.ContentTypeToolResult:
			results = append(results, buildToolResult(&block))
		}
	}
	return u, results
}

func buildToolResult(block *relaymodel.ContentBlock) toolResult {
	status := "success"
	if block.IsError {
		status = "error"
	}
	return toolResult{
		ToolUseID: block.ToolUseID,
		Status:    status,
		Content:   []textContent{{Text: toolResultText(block.Content)}},
	}
}

// toolResultText flattens tool_result content (string or block list) to text.
func toolResultText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t == relaymodel.ContentTypeText {
				if s, ok := m["text"].(string); ok {
					out += s
				}
			}
		}
		return out
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func buildAssistantMessage(msg *relaymodel.Message) *assistantResponseMessage {
	out := &assistantResponseMessage{}
	for _, block := range msg.Blocks() {
		switch block.Type {
		case relaymodel.ContentTypeText:
			out.Content += block.Text
		case relaymodel.ContentTypeToolUse:
			out.ToolUses = append(out.ToolUses, sanitizeToolUse(toolUse{
				ToolUseID: block.ID,
				Name:      block.Name,
				Input:     asObject(block.Input),
			}))
		}
	}
	if out.Content == "" && len(out.ToolUses) == 0 {
		out.Content = " "
	}
	return out
}

func asObject(input any) map[string]any {
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func formatFromMediaType(mediaType string) string {
	switch mediaType {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}
