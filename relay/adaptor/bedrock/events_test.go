package bedrock

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"claude-relay/relay/decoder"
)

func chunkFrame(t *testing.T, event any) []byte {
	t.Helper()
	inner, err := json.Marshal(event)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]string{
		"bytes": base64.StdEncoding.EncodeToString(inner),
	})
	require.NoError(t, err)
	return frame("chunk", payload)
}

func frame(eventType string, payload []byte) []byte {
	var headers []byte
	name := []byte(":event-type")
	headers = append(headers, byte(len(name)))
	headers = append(headers, name...)
	headers = append(headers, 7)
	headers = binary.BigEndian.AppendUint16(headers, uint16(len(eventType)))
	headers = append(headers, eventType...)

	totalLen := 12 + len(headers) + len(payload) + 4
	out := make([]byte, 0, totalLen)
	out = binary.BigEndian.AppendUint32(out, uint32(totalLen))
	out = binary.BigEndian.AppendUint32(out, uint32(len(headers)))
	out = binary.BigEndian.AppendUint32(out, 0)
	out = append(out, headers...)
	out = append(out, payload...)
	out = binary.BigEndian.AppendUint32(out, 0)
	return out
}

func TestBedrockDecoderTextAndStop(t *testing.T) {
	d := newStreamDecoder()

	var stream []byte
	stream = append(stream, chunkFrame(t, map[string]any{
		"type": "content_block_delta", "index": 0,
		"delta": map[string]any{"type": "text_delta", "text": "hello"},
	})...)
	stream = append(stream, chunkFrame(t, map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn"},
		"usage": map[string]any{"input_tokens": 12, "output_tokens": 5},
	})...)

	events := d.Feed(stream)
	require.Len(t, events, 2)
	require.Equal(t, decoder.NativeText, events[0].Kind)
	require.Equal(t, "hello", events[0].Text)
	require.Equal(t, decoder.NativeStop, events[1].Kind)
	require.Equal(t, "end_turn", events[1].StopReason)
	require.Equal(t, 5, events[1].Usage.OutputTokens)
}

func TestBedrockDecoderToolCallByIndex(t *testing.T) {
	d := newStreamDecoder()

	var stream []byte
	stream = append(stream, chunkFrame(t, map[string]any{
		"type": "content_block_start", "index": 1,
		"content_block": map[string]any{"type": "tool_use", "id": "toolu_abc", "name": "get_weather"},
	})...)
	stream = append(stream, chunkFrame(t, map[string]any{
		"type": "content_block_delta", "index": 1,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": `{"city":`},
	})...)
	stream = append(stream, chunkFrame(t, map[string]any{
		"type": "content_block_delta", "index": 1,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": `"SF"}`},
	})...)
	stream = append(stream, chunkFrame(t, map[string]any{
		"type": "content_block_stop", "index": 1,
	})...)

	events := d.Feed(stream)
	require.Len(t, events, 4)
	require.Equal(t, decoder.NativeToolUseStart, events[0].Kind)
	require.Equal(t, "toolu_abc", events[0].CallID)
	require.Equal(t, "get_weather", events[0].ToolName)
	require.Equal(t, decoder.NativeToolInputDelta, events[1].Kind)
	require.Equal(t, `{"city":`, events[1].InputFragment)
	require.Equal(t, decoder.NativeToolUseStop, events[3].Kind)
	require.Equal(t, "toolu_abc", events[3].CallID)
}

func TestBedrockDecoderExceptionFrame(t *testing.T) {
	d := newStreamDecoder()
	events := d.Feed(frame("throttlingException", []byte(`{"message":"slow down"}`)))
	require.Len(t, events, 1)
	require.Equal(t, decoder.NativeError, events[0].Kind)
	require.Equal(t, "slow down", events[0].Err.Message)
	require.Equal(t, "throttlingException", events[0].Err.Code)
}

func TestBedrockDecoderFramingIndependence(t *testing.T) {
	var stream []byte
	stream = append(stream, chunkFrame(t, map[string]any{
		"type": "content_block_delta", "index": 0,
		"delta": map[string]any{"type": "text_delta", "text": "chunked"},
	})...)
	stream = append(stream, chunkFrame(t, map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn"},
	})...)

	whole := newStreamDecoder().Feed(stream)

	bytewise := newStreamDecoder()
	var drip []decoder.NativeEvent
	for i := range stream {
		drip = append(drip, bytewise.Feed(stream[i:i+1])...)
	}
	require.Equal(t, whole, drip)
}
