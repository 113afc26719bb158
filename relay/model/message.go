package model

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// Role values accepted on canonical messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block discriminants. These mirror the Anthropic Messages wire
// vocabulary and are the only block kinds the gateway normalizes to.
const (
	ContentTypeText       = "text"
	ContentTypeImage      = "image"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"
	ContentTypeThinking   = "thinking"
)

// ClaudeRequest is the canonical request accepted by the gateway. Its JSON
// shape matches the Anthropic Messages API so clients can be pointed at the
// gateway without modification.
type ClaudeRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	System        any             `json:"system,omitempty"` // string or []ContentBlock
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Stream        *bool           `json:"stream,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// IsStream reports whether the caller asked for an SSE response.
func (r *ClaudeRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// SystemText flattens the system prompt into plain text regardless of whether
// the caller sent a string or a block list.
func (r *ClaudeRequest) SystemText() string {
	switch v := r.System.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t == ContentTypeText {
				if s, ok := m["text"].(string); ok {
					if out != "" {
						out += "\n"
					}
					out += s
				}
			}
		}
		return out
	default:
		return ""
	}
}

// Validate enforces the invariants the gateway relies on before translation:
// at least one message, known roles, and unique tool names.
func (r *ClaudeRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i := range r.Messages {
		role := r.Messages[i].Role
		if role != RoleUser && role != RoleAssistant {
			return errors.Errorf("message %d: unsupported role %q", i, role)
		}
	}
	seen := make(map[string]bool, len(r.Tools))
	for _, tool := range r.Tools {
		if tool.Name == "" {
			return errors.New("tool name is required")
		}
		if seen[tool.Name] {
			return errors.Errorf("duplicate tool name %q", tool.Name)
		}
		seen[tool.Name] = true
	}
	return nil
}

// Message is one canonical conversation turn. Content is either a bare string
// or a list of content blocks; Blocks normalizes both forms.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Blocks returns the message content as a normalized block list. A bare
// string becomes a single text block; unrecognized entries are dropped.
func (m *Message) Blocks() []ContentBlock {
	switch v := m.Content.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []ContentBlock{{Type: ContentTypeText, Text: v}}
	case []ContentBlock:
		return v
	case []any:
		blocks := make([]ContentBlock, 0, len(v))
		for _, item := range v {
			raw, err := json.Marshal(item)
			if err != nil {
				continue
			}
			var block ContentBlock
			if err := json.Unmarshal(raw, &block); err != nil {
				continue
			}
			if block.Type != "" {
				blocks = append(blocks, block)
			}
		}
		return blocks
	default:
		return nil
	}
}

// PlainText concatenates the text blocks of the message.
func (m *Message) PlainText() string {
	var out string
	for _, block := range m.Blocks() {
		if block.Type == ContentTypeText {
			out += block.Text
		}
	}
	return out
}

// ContentBlock is the tagged union of canonical content kinds. Only the
// fields matching Type are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "image"
	Source *ImageSource `json:"source,omitempty"`

	// type == "tool_use"
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"` // string or []ContentBlock
	IsError   bool   `json:"is_error,omitempty"`

	// type == "thinking"
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// ImageSource carries inline image data the way the Messages API does.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Tool is a canonical tool specification.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

// MergeAdjacentRoles collapses consecutive same-role messages into one,
// concatenating text and extending block lists. Several backends reject
// consecutive same-role turns outright, so translators call this before any
// backend-specific shaping. The input and its blocks are never mutated;
// translators run on retried requests and a merge that wrote through to the
// caller's blocks would compound on every attempt.
func MergeAdjacentRoles(messages []Message) []Message {
	if len(messages) < 2 {
		return messages
	}
	merged := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if len(merged) > 0 && merged[len(merged)-1].Role == msg.Role {
			prev := &merged[len(merged)-1]
			prevBlocks := append([]ContentBlock(nil), prev.Blocks()...)
			nextBlocks := append([]ContentBlock(nil), msg.Blocks()...)
			// Adjacent text blocks at the seam are joined so that a pair of
			// plain-string messages still merges into a single text block.
			if n := len(prevBlocks); n > 0 && len(nextBlocks) > 0 &&
				prevBlocks[n-1].Type == ContentTypeText && nextBlocks[0].Type == ContentTypeText {
				prevBlocks[n-1].Text += "\n" + nextBlocks[0].Text
				nextBlocks = nextBlocks[1:]
			}
			prev.Content = append(prevBlocks, nextBlocks...)
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}
