// Package controller orchestrates one relay request end to end: account
// selection, translation, the wire call, decoding and normalization, and
// bounded recovery when an attempt fails before producing output.
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/Laisky/zap"

	"claude-relay/common/config"
	"claude-relay/common/logger"
	"claude-relay/common/random"
	"claude-relay/common/tokenizer"
	"claude-relay/model"
	"claude-relay/relay/adaptor"
	"claude-relay/relay/adaptor/anthropic"
	"claude-relay/relay/adaptor/bedrock"
	"claude-relay/relay/adaptor/kiro"
	"claude-relay/relay/adaptor/orchids"
	"claude-relay/relay/meta"
	relaymodel "claude-relay/relay/model"
	"claude-relay/relay/pool"
	"claude-relay/relay/toolresult"
)

// EmitFunc receives canonical events in order. Streaming handlers forward
// them as SSE; non-streaming handlers assemble them into one message.
type EmitFunc func(relaymodel.StreamEvent) error

// Relayer owns the per-process relay collaborators. It is constructed once
// in the composition root and shared by all requests; per-request state
// lives in meta.Meta and the per-attempt decoder/normalizer pair.
type Relayer struct {
	pool     *pool.Pool
	results  *toolresult.Cache
	adaptors map[string]adaptor.Adaptor
}

// NewRelayer wires the relayer over its collaborators.
func NewRelayer(p *pool.Pool, results *toolresult.Cache) *Relayer {
	r := &Relayer{
		pool:     p,
		results:  results,
		adaptors: make(map[string]adaptor.Adaptor),
	}
	for _, a := range []adaptor.Adaptor{
		&bedrock.Adaptor{},
		&kiro.Adaptor{},
		&orchids.Adaptor{},
		&anthropic.Adaptor{},
	} {
		r.adaptors[a.Provider()] = a
	}
	return r
}

// Providers returns the provider ids with a registered adaptor.
func (r *Relayer) Providers() []string {
	// Stable preference order for provider auto-selection.
	return []string{
		model.ProviderKiro,
		model.ProviderBedrock,
		model.ProviderOrchids,
		model.ProviderAnthropic,
	}
}

// ResolveProvider picks the provider for a request: an explicit choice wins,
// otherwise the first preferred provider that has an account available.
func (r *Relayer) ResolveProvider(explicit string) (string, *relaymodel.ErrorWithStatusCode) {
	if explicit != "" {
		if _, ok := r.adaptors[explicit]; !ok {
			return "", openError(http.StatusBadRequest,
				"unknown provider: "+explicit, relaymodel.ErrTypeInvalidRequest)
		}
		return explicit, nil
	}
	for _, provider := range r.Providers() {
		if account, err := r.pool.Select(provider, nil); err == nil {
			r.pool.Release(account.Id)
			return provider, nil
		}
	}
	return "", openError(http.StatusServiceUnavailable,
		"no available credential", relaymodel.ErrTypeOverloaded)
}

// Relay runs one logical request to completion. It returns a non-nil error
// only when the failure happened before any canonical event reached emit;
// failures after that point terminate the stream with an error event instead,
// so callers never see a stream that neither completes nor errors.
func (r *Relayer) Relay(ctx context.Context, provider string, req *relaymodel.ClaudeRequest, emit EmitFunc) *relaymodel.ErrorWithStatusCode {
	ad, ok := r.adaptors[provider]
	if !ok {
		return openError(http.StatusBadRequest, "unknown provider: "+provider, relaymodel.ErrTypeInvalidRequest)
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = config.DefaultMaxTokens
	}
	r.rememberToolResults(req)

	m := &meta.Meta{
		RequestID:     random.GetUUID(),
		MessageID:     random.MessageID(),
		Provider:      provider,
		OriginalModel: req.Model,
		InputTokens:   tokenizer.EstimateRequest(req),
	}
	lg := logger.Logger.With(
		zap.String("request_id", m.RequestID),
		zap.String("provider", provider),
		zap.String("model", req.Model),
	)

	workReq := req
	excluded := make(map[int]bool)
	splicedOnce := false
	retries := 0
	backoff := config.RetryBaseDelay

	for {
		account, err := r.pool.Select(provider, excluded)
		if err != nil {
			return openError(http.StatusServiceUnavailable, "no available credential", relaymodel.ErrTypeOverloaded)
		}
		m.Account = account
		r.pool.RecordRequest(account.Id)

		fail := r.attempt(ctx, ad, workReq, m, emit)
		if fail == nil {
			r.pool.RecordSuccess(account.Id)
			r.pool.Release(account.Id)
			return nil
		}
		r.pool.RecordFailure(account.Id, fail.message)
		r.pool.Release(account.Id)

		if fail.emitted {
			// Events already reached the caller; the attempt loop must not
			// replay them. attempt() has emitted the terminal error event.
			lg.Warn("stream failed after emission", zap.String("reason", fail.message))
			return nil
		}

		switch {
		case fail.kind == failToolResultMissing && !splicedOnce:
			spliced, changed := r.spliceToolResult(workReq, fail.missingToolID)
			if changed {
				lg.Info("splicing recovered tool result", zap.String("tool_use_id", fail.missingToolID))
				workReq = spliced
				splicedOnce = true
				continue
			}
			return surface(fail)

		case fail.kind == failTooLarge && m.CompressionLevel < config.MaxCompressionLevel:
			m.CompressionLevel++
			lg.Info("compressing history", zap.Int("level", m.CompressionLevel))
			workReq = compressRequest(workReq, m.CompressionLevel)
			continue

		case (fail.kind == failRateLimited || fail.kind == failServerError) && retries < config.RetryTimes:
			retries++
			lg.Warn("retrying after upstream failure",
				zap.Int("attempt", retries), zap.Int("status", fail.statusCode),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return openError(http.StatusRequestTimeout, "request canceled", relaymodel.ErrTypeAPI)
			}
			backoff *= 2
			if fail.kind == failServerError {
				excluded[account.Id] = true
			}
			continue

		case shouldSwitchToFallback(fail, m.UseFallback, ad.FallbackURL()):
			// No bytes ever arrived from the primary endpoint, whether it
			// refused the connection or kept answering 5xx through the retry
			// budget; switch once and reset that budget.
			m.UseFallback = true
			retries = 0
			backoff = config.RetryBaseDelay
			lg.Warn("switching to fallback endpoint", zap.String("url", ad.FallbackURL()))
			continue

		default:
			return surface(fail)
		}
	}
}

// rememberToolResults feeds every tool_result in the incoming history into
// the recovery cache, keyed by tool_use_id.
func (r *Relayer) rememberToolResults(req *relaymodel.ClaudeRequest) {
	for i := range req.Messages {
		for _, block := range req.Messages[i].Blocks() {
			if block.Type == relaymodel.ContentTypeToolResult && block.ToolUseID != "" {
				r.results.Put(block.ToolUseID, block.Content)
			}
		}
	}
}

func openError(status int, message, errType string) *relaymodel.ErrorWithStatusCode {
	return &relaymodel.ErrorWithStatusCode{
		StatusCode: status,
		Error:      relaymodel.Error{Message: message, Type: errType},
	}
}

func surface(fail *failure) *relaymodel.ErrorWithStatusCode {
	status := fail.statusCode
	if status == 0 {
		status = http.StatusBadGateway
	}
	errType := fail.errType
	if errType == "" {
		errType = relaymodel.ErrTypeAPI
	}
	return &relaymodel.ErrorWithStatusCode{
		StatusCode: status,
		Error: relaymodel.Error{
			Message:   fail.message,
			Type:      errType,
			Code:      fail.code,
			RequestID: fail.requestID,
		},
	}
}
