package controller

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"claude-relay/relay/adaptor"
	"claude-relay/relay/decoder"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
	"claude-relay/relay/normalizer"
	"claude-relay/relay/transport"
)

// attempt runs one translated request against the backend. A nil return means
// the stream completed and every canonical event reached emit. A non-nil
// failure describes what went wrong; fail.emitted distinguishes failures that
// already produced client-visible output (terminal error event sent here, no
// replay possible) from failures the caller may still recover from.
func (r *Relayer) attempt(ctx context.Context, ad adaptor.Adaptor, req *relaymodel.ClaudeRequest, m *meta.Meta, emit EmitFunc) *failure {
	wire, err := ad.Translate(ctx, req, m)
	if err != nil {
		return &failure{
			kind:       failFatal,
			statusCode: http.StatusBadRequest,
			errType:    relaymodel.ErrTypeInvalidRequest,
			message:    err.Error(),
		}
	}

	resp, err := transport.Open(ctx, wire.Method, wire.URL, wire.Header, bytes.NewReader(wire.Body))
	if err != nil {
		return &failure{kind: failTransport, message: err.Error()}
	}
	if resp.Session == nil {
		fail := classifyHTTPError(resp.StatusCode, resp.ErrorBody)
		fail.requestID = upstreamRequestID(resp.Header)
		return fail
	}
	defer resp.Session.Close()

	dec := ad.NewDecoder(m)
	norm := normalizer.New(m.MessageID, m.OriginalModel, m.InputTokens)
	emitted := false

	push := func(events []decoder.NativeEvent) *failure {
		for _, ev := range events {
			if ev.Kind == decoder.NativeError && !emitted {
				// Nothing reached the client yet, so this error is still a
				// recoverable attempt failure rather than a stream fault.
				fail := classifyNativeError(ev.Err)
				fail.gotBytes = true
				return fail
			}
			for _, out := range norm.Push(ev) {
				if err := emit(out); err != nil {
					return &failure{kind: failFatal, message: err.Error(), emitted: emitted}
				}
				emitted = true
			}
			if ev.Kind == decoder.NativeError {
				return &failure{kind: failFatal, message: ev.Err.Message, emitted: true}
			}
		}
		return nil
	}

	gotBytes := false
	for {
		chunk, err := resp.Session.Recv(ctx)
		if len(chunk) > 0 {
			gotBytes = true
			if fail := push(dec.Feed(chunk)); fail != nil {
				return fail
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if emitted {
				// The stream is already half-delivered; close it with a
				// terminal error event instead of letting it dangle.
				_ = emit(relaymodel.StreamEvent{
					Type: relaymodel.EventError,
					Error: &relaymodel.Error{
						Message: "upstream connection lost: " + err.Error(),
						Type:    relaymodel.ErrTypeAPI,
					},
				})
				return &failure{kind: failFatal, message: err.Error(), emitted: true}
			}
			if gotBytes {
				return &failure{kind: failServerError, message: err.Error(), gotBytes: true}
			}
			return &failure{kind: failTransport, message: err.Error()}
		}
	}

	if fail := push(dec.Finish()); fail != nil {
		return fail
	}
	for _, out := range norm.Finish() {
		if err := emit(out); err != nil {
			return &failure{kind: failFatal, message: err.Error(), emitted: emitted}
		}
		emitted = true
	}
	if !emitted {
		// A 200 that decoded to nothing is indistinguishable from a dropped
		// connection; treat it as retryable.
		return &failure{kind: failServerError, message: "upstream stream produced no events", gotBytes: gotBytes}
	}
	return nil
}

func upstreamRequestID(header http.Header) string {
	for _, key := range []string{"Request-Id", "X-Request-Id", "X-Amzn-Requestid"} {
		if v := header.Get(key); v != "" {
			return v
		}
	}
	return ""
}
