// Package anthropic passes canonical requests straight through to the
// first-party Messages API. Translation is nearly the identity; the value is
// letting a pool mix first-party credentials with the other providers.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"

	"claude-relay/model"
	"claude-relay/relay/adaptor"
	"claude-relay/relay/decoder"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Adaptor implements the first-party passthrough backend.
type Adaptor struct{}

func (a *Adaptor) Provider() string { return model.ProviderAnthropic }

func (a *Adaptor) FallbackURL() string { return "" }

func (a *Adaptor) Translate(ctx context.Context, req *relaymodel.ClaudeRequest, m *meta.Meta) (*adaptor.WireRequest, error) {
	m.ActualModel = req.Model

	// Re-marshal rather than forwarding raw bytes so recovery mutations
	// (spliced tool results, compressed history) reach the wire. Upstream is
	// always asked to stream; the relay assembles non-streaming replies.
	upstream := *req
	stream := true
	upstream.Stream = &stream
	raw, err := json.Marshal(&upstream)
	if err != nil {
		return nil, errors.Wrap(err, "marshal anthropic body")
	}

	base := defaultBaseURL
	if m.Account.BaseURL != "" {
		base = m.Account.BaseURL
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Api-Key", m.Account.Key)
	header.Set("Anthropic-Version", apiVersion)
	header.Set("Accept", "text/event-stream")

	return &adaptor.WireRequest{
		Method: http.MethodPost,
		URL:    base + "/v1/messages",
		Header: header,
		Body:   raw,
	}, nil
}

func (a *Adaptor) NewDecoder(m *meta.Meta) decoder.StreamDecoder {
	return newStreamDecoder()
}
