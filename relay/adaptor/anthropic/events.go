package anthropic

import (
	"encoding/json"

	"claude-relay/relay/decoder"
	relaymodel "claude-relay/relay/model"
)

// sseEvent is the subset of the first-party streaming vocabulary the mapper
// consumes. Everything else (pings, message_stop) is dropped; the normalizer
// synthesizes its own terminal events.
type sseEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message *struct {
		Usage relaymodel.Usage `json:"usage"`
	} `json:"message"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		Thinking    string `json:"thinking"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage *relaymodel.Usage `json:"usage"`
	Error *relaymodel.Error `json:"error"`
}

type streamDecoder struct {
	lines       *decoder.SSEDecoder
	toolByIndex map[int]string
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{
		lines:       decoder.NewSSEDecoder(),
		toolByIndex: make(map[int]string),
	}
}

func (d *streamDecoder) Feed(p []byte) []decoder.NativeEvent {
	var out []decoder.NativeEvent
	for _, line := range d.lines.Feed(p) {
		out = append(out, d.mapEvent(line.Data)...)
	}
	return out
}

func (d *streamDecoder) Finish() []decoder.NativeEvent { return nil }

func (d *streamDecoder) mapEvent(data []byte) []decoder.NativeEvent {
	var ev sseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			usage := ev.Message.Usage
			return []decoder.NativeEvent{{Kind: decoder.NativeUsage, Usage: &usage}}
		}

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == relaymodel.ContentTypeToolUse {
			d.toolByIndex[ev.Index] = ev.ContentBlock.ID
			return []decoder.NativeEvent{{
				Kind:     decoder.NativeToolUseStart,
				CallID:   ev.ContentBlock.ID,
				ToolName: ev.ContentBlock.Name,
			}}
		}

	case "content_block_delta":
		if ev.Delta == nil {
			return nil
		}
		switch ev.Delta.Type {
		case relaymodel.DeltaTypeText:
			return []decoder.NativeEvent{{Kind: decoder.NativeText, Text: ev.Delta.Text}}
		case relaymodel.DeltaTypeThinking:
			return []decoder.NativeEvent{{Kind: decoder.NativeThinking, Text: ev.Delta.Thinking}}
		case relaymodel.DeltaTypeInputJSON:
			if id, ok := d.toolByIndex[ev.Index]; ok {
				return []decoder.NativeEvent{{
					Kind:          decoder.NativeToolInputDelta,
					CallID:        id,
					InputFragment: ev.Delta.PartialJSON,
				}}
			}
		}

	case "content_block_stop":
		if id, ok := d.toolByIndex[ev.Index]; ok {
			delete(d.toolByIndex, ev.Index)
			return []decoder.NativeEvent{{Kind: decoder.NativeToolUseStop, CallID: id}}
		}

	case "message_delta":
		stop := decoder.NativeEvent{Kind: decoder.NativeStop}
		if ev.Delta != nil {
			stop.StopReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			stop.Usage = ev.Usage
		}
		return []decoder.NativeEvent{stop}

	case "error":
		err := ev.Error
		if err == nil {
			err = &relaymodel.Error{Message: "anthropic stream error", Type: relaymodel.ErrTypeAPI}
		}
		return []decoder.NativeEvent{{Kind: decoder.NativeError, Err: err}}
	}
	return nil
}
