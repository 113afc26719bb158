package decoder

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildFrame assembles one binary frame with a single :event-type string
// header. CRC slots are filled with zeros since the decoder never checks them.
func buildFrame(eventType string, payload []byte) []byte {
	var headers []byte
	name := []byte(":event-type")
	headers = append(headers, byte(len(name)))
	headers = append(headers, name...)
	headers = append(headers, 7) // string
	headers = binary.BigEndian.AppendUint16(headers, uint16(len(eventType)))
	headers = append(headers, eventType...)

	totalLen := 12 + len(headers) + len(payload) + 4
	frame := make([]byte, 0, totalLen)
	frame = binary.BigEndian.AppendUint32(frame, uint32(totalLen))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(headers)))
	frame = binary.BigEndian.AppendUint32(frame, 0) // prelude crc
	frame = append(frame, headers...)
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint32(frame, 0) // message crc
	return frame
}

func TestEventStreamDecoderSingleFrame(t *testing.T) {
	frame := buildFrame("assistantResponseEvent", []byte(`{"content":"hi"}`))

	d := NewEventStreamDecoder()
	msgs := d.Feed(frame)
	require.Len(t, msgs, 1)
	require.Equal(t, "assistantResponseEvent", msgs[0].EventType)
	require.JSONEq(t, `{"content":"hi"}`, string(msgs[0].Payload))
}

func TestEventStreamDecoderMultipleFramesOneChunk(t *testing.T) {
	var stream []byte
	stream = append(stream, buildFrame("assistantResponseEvent", []byte(`{"content":"a"}`))...)
	stream = append(stream, buildFrame("toolUseEvent", []byte(`{"toolUseId":"t1"}`))...)
	stream = append(stream, buildFrame("messageMetadataEvent", []byte(`{}`))...)

	d := NewEventStreamDecoder()
	msgs := d.Feed(stream)
	require.Len(t, msgs, 3)
	require.Equal(t, "assistantResponseEvent", msgs[0].EventType)
	require.Equal(t, "toolUseEvent", msgs[1].EventType)
	require.Equal(t, "messageMetadataEvent", msgs[2].EventType)
}

func TestEventStreamDecoderFramingIndependence(t *testing.T) {
	var stream []byte
	stream = append(stream, buildFrame("assistantResponseEvent", []byte(`{"content":"hello"}`))...)
	stream = append(stream, buildFrame("toolUseEvent", []byte(`{"toolUseId":"t1","name":"shell","input":"{\"cmd"}`))...)
	stream = append(stream, buildFrame("toolUseEvent", []byte(`{"toolUseId":"t1","input":"\":\"ls\"}","stop":true}`))...)

	whole := NewEventStreamDecoder().Feed(stream)

	bytewise := NewEventStreamDecoder()
	var drip []EventStreamMessage
	for i := range stream {
		drip = append(drip, bytewise.Feed(stream[i:i+1])...)
	}

	require.Equal(t, whole, drip)
}

func TestEventStreamDecoderExtraHeadersSkipped(t *testing.T) {
	// Frame carrying a non-string header before :event-type.
	var headers []byte
	name := []byte(":message-type")
	headers = append(headers, byte(len(name)))
	headers = append(headers, name...)
	headers = append(headers, 4) // int
	headers = binary.BigEndian.AppendUint32(headers, 42)

	name = []byte(":event-type")
	headers = append(headers, byte(len(name)))
	headers = append(headers, name...)
	headers = append(headers, 7)
	headers = binary.BigEndian.AppendUint16(headers, uint16(len("meteringEvent")))
	headers = append(headers, "meteringEvent"...)

	payload := []byte(`{"usage":1}`)
	totalLen := 12 + len(headers) + len(payload) + 4
	var frame []byte
	frame = binary.BigEndian.AppendUint32(frame, uint32(totalLen))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(headers)))
	frame = binary.BigEndian.AppendUint32(frame, 0)
	frame = append(frame, headers...)
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint32(frame, 0)

	msgs := NewEventStreamDecoder().Feed(frame)
	require.Len(t, msgs, 1)
	require.Equal(t, "meteringEvent", msgs[0].EventType)
}

func TestEventStreamDecoderDesyncGoesDead(t *testing.T) {
	d := NewEventStreamDecoder()
	bogus := make([]byte, 16)
	binary.BigEndian.PutUint32(bogus, 4) // impossible total length
	require.Empty(t, d.Feed(bogus))
	require.Empty(t, d.Feed(buildFrame("assistantResponseEvent", []byte(`{}`))))
}
