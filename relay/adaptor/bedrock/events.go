package bedrock

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"claude-relay/relay/decoder"
	relaymodel "claude-relay/relay/model"
)

// chunkEnvelope is the payload of a "chunk" frame: the actual Anthropic event
// rides inside as base64.
type chunkEnvelope struct {
	Bytes string `json:"bytes"`
}

// anthropicEvent is the subset of the Anthropic streaming vocabulary the
// mapper needs.
type anthropicEvent struct {
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

// streamDecoder turns Bedrock event-stream frames into native events. Tool
// call ids are tracked per content-block index because input_json_delta
// frames carry only the index.
type streamDecoder struct {
	frames      *decoder.EventStreamDecoder
	toolByIndex map[int]string
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{
		frames:      decoder.NewEventStreamDecoder(),
		toolByIndex: make(map[int]string),
	}
}

func (d *streamDecoder) Feed(p []byte) []decoder.NativeEvent {
	var out []decoder.NativeEvent
	for _, frame := range d.frames.Feed(p) {
		out = append(out, d.mapFrame(frame)...)
	}
	return out
}

func (d *streamDecoder) Finish() []decoder.NativeEvent { return nil }

func (d *streamDecoder) mapFrame(frame decoder.EventStreamMessage) []decoder.NativeEvent {
	if strings.HasSuffix(frame.EventType, "Exception") {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(frame.Payload, &body)
		if body.Message == "" {
			body.Message = frame.EventType
		}
		return []decoder.NativeEvent{{
			Kind: decoder.NativeError,
			Err:  &relaymodel.Error{Message: body.Message, Type: relaymodel.ErrTypeAPI, Code: frame.EventType},
		}}
	}
	if frame.EventType != "chunk" {
		return nil
	}

	var envelope chunkEnvelope
	if err := json.Unmarshal(frame.Payload, &envelope); err != nil {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(envelope.Bytes)
	if err != nil {
		return nil
	}
	var ev anthropicEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil
	}
	return d.mapEvent(&ev)
}

func (d *streamDecoder) mapEvent(ev *anthropicEvent) []decoder.NativeEvent {
	switch ev.Type {
	case "message_start":
		if ev.Message != nil && (ev.Message.Usage.InputTokens > 0 || ev.Message.Usage.OutputTokens > 0) {
			usage := ev.Message.Usage
			return []decoder.NativeEvent{{Kind: decoder.NativeUsage, Usage: &usage}}
		}
		return nil

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == relaymodel.ContentTypeToolUse {
			d.toolByIndex[ev.Index] = ev.ContentBlock.ID
			return []decoder.NativeEvent{{
				Kind:     decoder.NativeToolUseStart,
				CallID:   ev.ContentBlock.ID,
				ToolName: ev.ContentBlock.Name,
			}}
		}
		return nil

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
			if callID, ok := d.toolByIndex[ev.Index]; ok {
				return []decoder.NativeEvent{{
					Kind:          decoder.NativeToolInputDelta,
					CallID:        callID,
					InputFragment: ev.Delta.PartialJSON,
				}}
			}
		}
		return nil

	case "content_block_stop":
		if callID, ok := d.toolByIndex[ev.Index]; ok {
			delete(d.toolByIndex, ev.Index)
			return []decoder.NativeEvent{{Kind: decoder.NativeToolUseStop, CallID: callID}}
		}
		return nil

	case "message_delta":
		var out []decoder.NativeEvent
		stop := decoder.NativeEvent{Kind: decoder.NativeStop}
		if ev.Delta != nil {
			stop.StopReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			stop.Usage = ev.Usage
		}
		return append(out, stop)

	case "error":
		err := ev.Error
		if err == nil {
			err = &relaymodel.Error{Message: "bedrock stream error", Type: relaymodel.ErrTypeAPI}
		}
		return []decoder.NativeEvent{{Kind: decoder.NativeError, Err: err}}
	}
	// message_stop and pings carry nothing the normalizer needs.
	return nil
}
