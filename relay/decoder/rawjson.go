package decoder

import "bytes"

// RawJSONDecoder extracts complete JSON objects embedded in an otherwise
// opaque byte stream. The stream has no framing at all: objects of interest
// are located by searching for known marker field names, then bounded by
// walking brace depth from the nearest opening brace before the marker.
//
// The brace walk respects JSON string syntax, so braces inside quoted values
// (including escaped quotes) never unbalance the count. An object whose
// closing brace has not arrived yet stays buffered; the scan restarts from
// the same marker on the next Feed.
type RawJSONDecoder struct {
	buf     []byte
	markers [][]byte
}

// NewRawJSONDecoder returns a decoder that extracts objects containing any of
// the given marker field names (e.g. "content", "toolUseId", "input").
func NewRawJSONDecoder(markers ...string) *RawJSONDecoder {
	d := &RawJSONDecoder{}
	for _, m := range markers {
		d.markers = append(d.markers, []byte(`"`+m+`"`))
	}
	return d
}

// Feed appends p and returns every complete marked object now present, in
// stream order. Consumed bytes (and any junk before them) are discarded;
// incomplete trailing objects are retained.
func (d *RawJSONDecoder) Feed(p []byte) [][]byte {
	d.buf = append(d.buf, p...)

	var objs [][]byte
	for {
		markerAt := d.nearestMarker()
		if markerAt < 0 {
			d.trimUnmarked()
			return objs
		}
		start := bytes.LastIndexByte(d.buf[:markerAt], '{')
		if start < 0 {
			// Marker without an opening brace is junk; skip past it.
			d.buf = append(d.buf[:0], d.buf[markerAt+1:]...)
			continue
		}
		end, ok := scanObject(d.buf, start)
		if !ok {
			// Closing brace not buffered yet.
			return objs
		}
		objs = append(objs, append([]byte(nil), d.buf[start:end]...))
		d.buf = append(d.buf[:0], d.buf[end:]...)
	}
}

// nearestMarker returns the lowest offset of any marker in the buffer, or -1.
func (d *RawJSONDecoder) nearestMarker() int {
	at := -1
	for _, m := range d.markers {
		if i := bytes.Index(d.buf, m); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	return at
}

// trimUnmarked drops buffered bytes that can no longer contain a marker
// start, keeping a tail long enough for a marker split across chunks.
func (d *RawJSONDecoder) trimUnmarked() {
	keep := 0
	for _, m := range d.markers {
		if len(m) > keep {
			keep = len(m)
		}
	}
	// Also keep back to the last unclosed opening brace so the object start
	// survives until its marker arrives.
	if i := bytes.LastIndexByte(d.buf, '{'); i >= 0 && len(d.buf)-i > keep {
		keep = len(d.buf) - i
	}
	if len(d.buf) > keep {
		d.buf = append(d.buf[:0], d.buf[len(d.buf)-keep:]...)
	}
}

// scanObject walks the buffer from the opening brace at start, tracking brace
// depth and in-string/escape state, and returns the offset just past the
// matching closing brace.
func scanObject(buf []byte, start int) (end int, ok bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buf); i++ {
		c := buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
