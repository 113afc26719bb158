package kiro

import (
	"encoding/json"
	"strings"

	"claude-relay/relay/decoder"
	relaymodel "claude-relay/relay/model"
)

// event is the superset of fields observed across the service's payloads.
// Payloads are distinguished only by which fields are present, so mapping
// applies a fixed presence priority: error shape, tool-use shape, usage
// shape, stop shape, then plain content.
type event struct {
	// Error shapes: modeled exceptions carry "_type"; ad-hoc errors carry
	// "type" plus a message or reason.
	UnderscoreType string `json:"_type"`
	Type           string `json:"type"`
	Message        string `json:"message"`
	Reason         string `json:"reason"`

	// Tool-use shape.
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Stop      bool            `json:"stop"`

	// Usage shapes.
	TokenUsage *tokenUsage `json:"tokenUsage"`

	// Stop shape.
	StopReason string `json:"stopReason"`

	// Content shape.
	Content        string          `json:"content"`
	FollowupPrompt json.RawMessage `json:"followupPrompt"`
}

type tokenUsage struct {
	InputTokens         int `json:"inputTokens"`
	OutputTokens        int `json:"outputTokens"`
	UncachedInputTokens int `json:"uncachedInputTokens"`
	CacheReadInput      int `json:"cacheReadInputTokens"`
}

// eventMapper translates decoded payload objects into native events,
// tracking per-call state for fragmented tool input. Shared by both
// transport decoding modes.
type eventMapper struct {
	startedTools map[string]bool
	// lastContent suppresses the duplicated assistant text the raw stream is
	// observed to repeat verbatim.
	lastContent string
	suppress    bool
}

func newEventMapper(suppressDuplicates bool) *eventMapper {
	return &eventMapper{startedTools: make(map[string]bool), suppress: suppressDuplicates}
}

func (m *eventMapper) mapPayload(payload []byte) []decoder.NativeEvent {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		// Undocumented shapes are dropped, never fatal.
		return nil
	}

	// 1. Error shape.
	if ev.UnderscoreType != "" || ev.Type == "error" || ev.Type == "exception" {
		return []decoder.NativeEvent{{Kind: decoder.NativeError, Err: mapError(&ev)}}
	}

	// 2. Tool-use shape.
	if ev.ToolUseID != "" {
		return m.mapToolUse(&ev)
	}

	// 3. Usage shape.
	if ev.TokenUsage != nil {
		input := ev.TokenUsage.InputTokens
		if input == 0 {
			input = ev.TokenUsage.UncachedInputTokens + ev.TokenUsage.CacheReadInput
		}
		return []decoder.NativeEvent{{
			Kind:  decoder.NativeUsage,
			Usage: &relaymodel.Usage{InputTokens: input, OutputTokens: ev.TokenUsage.OutputTokens},
		}}
	}

	// 4. Stop shape.
	if ev.StopReason != "" {
		return []decoder.NativeEvent{{Kind: decoder.NativeStop, StopReason: ev.StopReason}}
	}

	// 5. Content shape. Followup prompts are service chrome, not assistant
	// output.
	if ev.FollowupPrompt != nil {
		return nil
	}
	if ev.Content != "" {
		if m.suppress && ev.Content == m.lastContent {
			return nil
		}
		m.lastContent = ev.Content
		return []decoder.NativeEvent{{Kind: decoder.NativeText, Text: ev.Content}}
	}
	return nil
}

func (m *eventMapper) mapToolUse(ev *event) []decoder.NativeEvent {
	var out []decoder.NativeEvent
	if !m.startedTools[ev.ToolUseID] {
		m.startedTools[ev.ToolUseID] = true
		out = append(out, decoder.NativeEvent{
			Kind:     decoder.NativeToolUseStart,
			CallID:   ev.ToolUseID,
			ToolName: ev.Name,
		})
	}

	// Input arrives either as JSON string fragments across events or as a
	// complete object on the closing event.
	var assembled any
	if len(ev.Input) > 0 {
		var fragment string
		if err := json.Unmarshal(ev.Input, &fragment); err == nil {
			if fragment != "" {
				out = append(out, decoder.NativeEvent{
					Kind:          decoder.NativeToolInputDelta,
					CallID:        ev.ToolUseID,
					ToolName:      ev.Name,
					InputFragment: fragment,
				})
			}
		} else {
			var obj map[string]any
			if err := json.Unmarshal(ev.Input, &obj); err == nil {
				assembled = obj
			}
		}
	}

	if ev.Stop || assembled != nil {
		out = append(out, decoder.NativeEvent{
			Kind:     decoder.NativeToolUseStop,
			CallID:   ev.ToolUseID,
			ToolName: ev.Name,
			Input:    assembled,
		})
	}
	return out
}

func mapError(ev *event) *relaymodel.Error {
	message := ev.Message
	if message == "" {
		message = ev.Reason
	}
	if message == "" {
		message = "upstream error"
	}
	errType := relaymodel.ErrTypeAPI
	if strings.Contains(ev.UnderscoreType, "ValidationException") {
		errType = relaymodel.ErrTypeInvalidRequest
	}
	if strings.Contains(ev.UnderscoreType, "ThrottlingException") {
		errType = relaymodel.ErrTypeRateLimit
	}
	out := &relaymodel.Error{Message: message, Type: errType}
	if ev.UnderscoreType != "" {
		out.Code = ev.UnderscoreType
	}
	return out
}

// binaryDecoder reads the default transport mode: binary event-stream frames
// whose payloads are the JSON events above.
type binaryDecoder struct {
	frames *decoder.EventStreamDecoder
	mapper *eventMapper
}

func newBinaryDecoder() *binaryDecoder {
	return &binaryDecoder{
		frames: decoder.NewEventStreamDecoder(),
		mapper: newEventMapper(false),
	}
}

func (d *binaryDecoder) Feed(p []byte) []decoder.NativeEvent {
	var out []decoder.NativeEvent
	for _, frame := range d.frames.Feed(p) {
		if len(frame.Payload) == 0 {
			continue
		}
		out = append(out, d.mapper.mapPayload(frame.Payload)...)
	}
	return out
}

func (d *binaryDecoder) Finish() []decoder.NativeEvent { return nil }

// rawDecoder reads the feature-flagged raw mode: the same JSON events
// embedded without framing in an opaque byte stream, located by marker
// fields and bounded by brace counting.
type rawDecoder struct {
	scanner *decoder.RawJSONDecoder
	mapper  *eventMapper
}

func newRawDecoder() *rawDecoder {
	return &rawDecoder{
		scanner: decoder.NewRawJSONDecoder("content", "toolUseId", "tokenUsage", "_type", "followupPrompt"),
		mapper:  newEventMapper(true),
	}
}

func (d *rawDecoder) Feed(p []byte) []decoder.NativeEvent {
	var out []decoder.NativeEvent
	for _, obj := range d.scanner.Feed(p) {
		out = append(out, d.mapper.mapPayload(obj)...)
	}
	return out
}

func (d *rawDecoder) Finish() []decoder.NativeEvent { return nil }
