package decoder

import "bytes"

// SSEEvent is one server-sent event: the event name (empty when the stream
// uses bare data lines) and the data payload.
type SSEEvent struct {
	Event string
	Data  []byte
}

// SSEDecoder incrementally splits a text/event-stream body into events. Only
// complete lines are interpreted; a partial trailing line stays buffered
// until its newline arrives. "event:" lines set the name for the following
// "data:" line, and "[DONE]" sentinels are dropped.
type SSEDecoder struct {
	buf       []byte
	nextEvent string
}

// NewSSEDecoder returns an empty line decoder.
func NewSSEDecoder() *SSEDecoder {
	return &SSEDecoder{}
}

// Feed appends p and returns every event whose data line is now complete.
func (d *SSEDecoder) Feed(p []byte) []SSEEvent {
	d.buf = append(d.buf, p...)

	var events []SSEEvent
	for {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			return events
		}
		// line aliases d.buf, so the buffer must not shift until the line
		// has been fully interpreted and its data copied out.
		line := bytes.TrimRight(d.buf[:nl], "\r")

		switch {
		case len(line) == 0:
			d.nextEvent = ""
		case bytes.HasPrefix(line, []byte("event:")):
			d.nextEvent = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimSpace(line[len("data:"):])
			if !bytes.Equal(data, []byte("[DONE]")) {
				events = append(events, SSEEvent{
					Event: d.nextEvent,
					Data:  append([]byte(nil), data...),
				})
			}
		}
		d.buf = append(d.buf[:0], d.buf[nl+1:]...)
	}
}
