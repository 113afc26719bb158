// Package decoder turns raw backend bytes into backend-native events.
//
// Each backend speaks a different incremental encoding (length-prefixed
// binary frames, bare JSON objects embedded in a raw stream, or line-oriented
// SSE). The framing decoders in this package share one contract: Feed accepts
// arbitrarily-sized, arbitrarily-fragmented chunks, returns only fully-decoded
// units, and retains trailing partial data internally until more bytes arrive.
// No call ever assumes a chunk boundary aligns with a logical boundary.
package decoder

import relaymodel "claude-relay/relay/model"

// NativeEventKind discriminates NativeEvent.
type NativeEventKind int

const (
	// NativeText is an assistant text fragment.
	NativeText NativeEventKind = iota
	// NativeThinking is a reasoning-text fragment.
	NativeThinking
	// NativeToolUseStart announces a tool call (id and, when known, name).
	NativeToolUseStart
	// NativeToolInputDelta appends a fragment of a tool call's JSON input.
	NativeToolInputDelta
	// NativeToolUseStop signals the backend finished emitting a tool call.
	// Input, when non-nil, carries an already-assembled input object for
	// backends that deliver tool calls whole.
	NativeToolUseStop
	// NativeUsage reports token accounting.
	NativeUsage
	// NativeStop carries the backend's stop reason; the normalizer maps it
	// into the canonical vocabulary.
	NativeStop
	// NativeError is a backend error surfaced inside an otherwise-200 stream.
	NativeError
)

// NativeEvent is one decoded backend event before normalization.
//
// Backend payloads are frequently distinguished only by which fields are
// present. The per-backend mappers resolve that ambiguity with a fixed
// field-presence priority, checked in this order: error shape, tool-use
// shape (a call id plus name or input), usage/metadata shape, stop shape,
// and finally plain content. The priority is implemented once per backend
// mapper rather than re-derived at call sites.
type NativeEvent struct {
	Kind NativeEventKind

	Text string

	CallID        string
	ToolName      string
	InputFragment string
	Input         any

	Usage *relaymodel.Usage

	StopReason string

	Err *relaymodel.Error
}

// StreamDecoder is the per-backend decoding contract: raw bytes in, fully
// decoded native events out. Implementations live with their adaptors and
// compose the framing decoders in this package.
type StreamDecoder interface {
	// Feed consumes one chunk and returns every event completed by it.
	// Malformed or unrecognized payloads are dropped, never fatal.
	Feed(p []byte) []NativeEvent
	// Finish reports events completed by end-of-stream, if any.
	Finish() []NativeEvent
}
