package orchids

import (
	"encoding/json"

	"claude-relay/common/random"
	"claude-relay/relay/decoder"
	relaymodel "claude-relay/relay/model"
)

// chunk is one SSE data payload in the chat-completions stream vocabulary.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// streamDecoder maps chat-completions SSE chunks to native events. Tool call
// ids arrive only on the first fragment of each call; later fragments carry
// just the positional index.
type streamDecoder struct {
	lines       *decoder.SSEDecoder
	idByIndex   map[int]string
	openOrder   []string
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{
		lines:     decoder.NewSSEDecoder(),
		idByIndex: make(map[int]string),
	}
}

func (d *streamDecoder) Feed(p []byte) []decoder.NativeEvent {
	var out []decoder.NativeEvent
	for _, ev := range d.lines.Feed(p) {
		out = append(out, d.mapChunk(ev.Data)...)
	}
	return out
}

// Finish closes any tool calls the stream never explicitly finished.
func (d *streamDecoder) Finish() []decoder.NativeEvent {
	return d.closeOpenCalls()
}

func (d *streamDecoder) mapChunk(data []byte) []decoder.NativeEvent {
	var c chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}

	if c.Error != nil {
		return []decoder.NativeEvent{{
			Kind: decoder.NativeError,
			Err: &relaymodel.Error{
				Message: c.Error.Message,
				Type:    relaymodel.ErrTypeAPI,
				Code:    c.Error.Code,
			},
		}}
	}

	var out []decoder.NativeEvent
	if c.Usage != nil {
		out = append(out, decoder.NativeEvent{
			Kind: decoder.NativeUsage,
			Usage: &relaymodel.Usage{
				InputTokens:  c.Usage.PromptTokens,
				OutputTokens: c.Usage.CompletionTokens,
			},
		})
	}
	if len(c.Choices) == 0 {
		return out
	}
	choice := c.Choices[0]

	if choice.Delta.Content != "" {
		out = append(out, decoder.NativeEvent{Kind: decoder.NativeText, Text: choice.Delta.Content})
	}
	for _, call := range choice.Delta.ToolCalls {
		if _, open := d.idByIndex[call.Index]; !open && (call.ID != "" || call.Function.Name != "") {
			id := call.ID
			if id == "" {
				// Some gateways omit the id from the opening fragment;
				// synthesize one so the tool_use block stays addressable.
				id = random.ToolUseID()
			}
			d.idByIndex[call.Index] = id
			d.openOrder = append(d.openOrder, id)
			out = append(out, decoder.NativeEvent{
				Kind:     decoder.NativeToolUseStart,
				CallID:   id,
				ToolName: call.Function.Name,
			})
		}
		if call.Function.Arguments != "" {
			if id, ok := d.idByIndex[call.Index]; ok {
				out = append(out, decoder.NativeEvent{
					Kind:          decoder.NativeToolInputDelta,
					CallID:        id,
					InputFragment: call.Function.Arguments,
				})
			}
		}
	}

	if choice.FinishReason != "" {
		out = append(out, d.closeOpenCalls()...)
		out = append(out, decoder.NativeEvent{Kind: decoder.NativeStop, StopReason: choice.FinishReason})
	}
	return out
}

func (d *streamDecoder) closeOpenCalls() []decoder.NativeEvent {
	var out []decoder.NativeEvent
	for _, id := range d.openOrder {
		out = append(out, decoder.NativeEvent{Kind: decoder.NativeToolUseStop, CallID: id})
	}
	d.openOrder = nil
	d.idByIndex = make(map[int]string)
	return out
}
