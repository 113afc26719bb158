// Package adaptor defines the per-backend contract: translate a canonical
// request into the backend's wire shape, and decode the backend's stream into
// native events. Backend-specific quirks (signing, tool reshaping, event
// vocabularies) live in the sub-packages.
package adaptor

import (
	"context"
	"net/http"

	"claude-relay/relay/decoder"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

// WireRequest is one fully-prepared upstream HTTP request: body bytes and
// headers, independent of any HTTP client.
type WireRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Adaptor is implemented once per backend.
type Adaptor interface {
	// Provider returns the provider id this adaptor serves.
	Provider() string

	// Translate builds the wire request for one attempt. Credential refresh
	// (token-based backends) happens here, before translation proper.
	Translate(ctx context.Context, req *relaymodel.ClaudeRequest, m *meta.Meta) (*WireRequest, error)

	// NewDecoder returns a fresh per-attempt stream decoder. Decoders are
	// stateful and never shared between attempts.
	NewDecoder(m *meta.Meta) decoder.StreamDecoder

	// FallbackURL returns the documented fallback endpoint for the provider,
	// or empty when none exists.
	FallbackURL() string
}
