package model

// Stream event discriminants, mirroring the Anthropic SSE vocabulary.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta discriminants used inside content_block_delta events.
const (
	DeltaTypeText          = "text_delta"
	DeltaTypeInputJSON     = "input_json_delta"
	DeltaTypeThinking      = "thinking_delta"
	DeltaTypeSignature     = "signature_delta"
)

// Stop reasons emitted on message_delta.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonToolUse      = "tool_use"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
)

// StreamEvent is one canonical streaming event. Type selects which of the
// optional fields are populated; the zero values of the rest are omitted from
// JSON so the wire shape matches the Anthropic SSE format exactly.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *ClaudeResponse `json:"message,omitempty"`

	// content_block_start / content_block_delta / content_block_stop
	Index        *int          `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *EventDelta   `json:"delta,omitempty"`

	// message_delta
	Usage *Usage `json:"usage,omitempty"`

	// error
	Error *Error `json:"error,omitempty"`
}

// EventDelta carries the per-event payload for content_block_delta and
// message_delta events.
type EventDelta struct {
	Type         string `json:"type,omitempty"`
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	Thinking     string `json:"thinking,omitempty"`
	Signature    string `json:"signature,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// ClaudeResponse is an assembled (non-streaming) message, also used as the
// message stub inside message_start.
type ClaudeResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // always "message"
	Role         string         `json:"role"` // always "assistant"
	Model        string         `json:"model,omitempty"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Usage carries token accounting in Anthropic field names.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// IndexOf is a convenience for building events with an index field.
func IndexOf(i int) *int { return &i }
