package decoder

import (
	"encoding/binary"
)

// Event-stream framing limits. Frames below the structural minimum are
// unrecoverable (the length fields themselves would overlap); oversized
// frames indicate a desynchronized stream.
const (
	eventStreamPreludeSize  = 12
	minEventStreamFrameSize = 16
	maxEventStreamFrameSize = 32 * 1024 * 1024
)

// EventStreamMessage is one decoded binary frame: the event type extracted
// from the header block plus the JSON payload.
type EventStreamMessage struct {
	EventType string
	Payload   []byte
}

// EventStreamDecoder incrementally parses the length-prefixed binary framing
// used by the CodeWhisperer-style streaming endpoints.
//
// Frame layout, all integers big-endian:
//
//	prelude (12 bytes): total_length(4) + headers_length(4) + prelude_crc(4)
//	headers (headers_length bytes): name-length-prefixed header entries
//	payload (total_length - 12 - headers_length - 4 bytes): JSON
//	message_crc (4 bytes)
//
// A frame is only decodable once total_length bytes have accumulated. Both
// CRC slots are consumed but not verified. Desynchronization (impossible
// lengths) marks the decoder dead; every later Feed returns nothing, and the
// caller treats the stream as ended.
type EventStreamDecoder struct {
	buf  []byte
	dead bool
}

// NewEventStreamDecoder returns a decoder with an empty retained buffer.
func NewEventStreamDecoder() *EventStreamDecoder {
	return &EventStreamDecoder{}
}

// Feed appends p to the retained buffer and returns every frame that is now
// complete. Partial trailing data is kept for the next call.
func (d *EventStreamDecoder) Feed(p []byte) []EventStreamMessage {
	if d.dead {
		return nil
	}
	d.buf = append(d.buf, p...)

	var msgs []EventStreamMessage
	for {
		if len(d.buf) < eventStreamPreludeSize {
			return msgs
		}
		totalLen := binary.BigEndian.Uint32(d.buf[0:4])
		headersLen := binary.BigEndian.Uint32(d.buf[4:8])
		// d.buf[8:12] is the prelude CRC; consumed, not verified.

		if totalLen < minEventStreamFrameSize || totalLen > maxEventStreamFrameSize ||
			headersLen > totalLen-minEventStreamFrameSize {
			d.dead = true
			return msgs
		}
		if uint32(len(d.buf)) < totalLen {
			return msgs
		}

		frame := d.buf[:totalLen]
		headers := frame[eventStreamPreludeSize : eventStreamPreludeSize+headersLen]
		payloadEnd := totalLen - 4 // trailing message CRC
		payload := frame[eventStreamPreludeSize+headersLen : payloadEnd]

		msg := EventStreamMessage{EventType: extractEventType(headers)}
		if len(payload) > 0 {
			msg.Payload = append([]byte(nil), payload...)
		}
		msgs = append(msgs, msg)

		d.buf = append(d.buf[:0], d.buf[totalLen:]...)
	}
}

// extractEventType walks the header block looking for the ":event-type"
// string header. Unknown header value types are skipped by their wire size.
func extractEventType(headers []byte) string {
	offset := 0
	for offset < len(headers) {
		nameLen := int(headers[offset])
		offset++
		if offset+nameLen > len(headers) {
			break
		}
		name := string(headers[offset : offset+nameLen])
		offset += nameLen

		if offset >= len(headers) {
			break
		}
		valueType := headers[offset]
		offset++

		if valueType == 7 { // string
			if offset+2 > len(headers) {
				break
			}
			valueLen := int(binary.BigEndian.Uint16(headers[offset : offset+2]))
			offset += 2
			if offset+valueLen > len(headers) {
				break
			}
			value := string(headers[offset : offset+valueLen])
			offset += valueLen
			if name == ":event-type" {
				return value
			}
			continue
		}

		next, ok := skipHeaderValue(headers, offset, valueType)
		if !ok {
			break
		}
		offset = next
	}
	return ""
}

func skipHeaderValue(headers []byte, offset int, valueType byte) (int, bool) {
	switch valueType {
	case 0, 1: // bool true / bool false
		return offset, true
	case 2: // byte
		return boundsCheck(headers, offset+1)
	case 3: // short
		return boundsCheck(headers, offset+2)
	case 4: // int
		return boundsCheck(headers, offset+4)
	case 5, 8: // long, timestamp
		return boundsCheck(headers, offset+8)
	case 6: // byte array: 2-byte length + data
		if offset+2 > len(headers) {
			return offset, false
		}
		valueLen := int(binary.BigEndian.Uint16(headers[offset : offset+2]))
		return boundsCheck(headers, offset+2+valueLen)
	case 9: // uuid
		return boundsCheck(headers, offset+16)
	default:
		return offset, false
	}
}

func boundsCheck(headers []byte, next int) (int, bool) {
	if next > len(headers) {
		return next, false
	}
	return next, true
}
