// Package meta carries per-request relay state between the controller, the
// adaptors, and the transport. One Meta is built per client request and
// mutated only by the retry controller between attempts.
package meta

import (
	"claude-relay/model"
)

// Meta is the per-request relay context.
type Meta struct {
	RequestID string
	// MessageID is the canonical message id announced in message_start and in
	// assembled non-streaming responses.
	MessageID string

	Provider string
	Account  *model.Account

	// OriginalModel is the client-requested model id; ActualModel the id sent
	// upstream after any per-provider mapping.
	OriginalModel string
	ActualModel   string

	InputTokens int

	// UseFallback routes the next attempt at the provider's documented
	// fallback endpoint instead of the account's primary one.
	UseFallback bool
	// CompressionLevel is the history-compression level applied to the next
	// attempt; 0 means the untouched request.
	CompressionLevel int
}
