package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"claude-relay/common/helper"
	"claude-relay/monitor"
	rcontroller "claude-relay/relay/controller"
	relaymodel "claude-relay/relay/model"
	"claude-relay/relay/pool"
)

var (
	relayer     *rcontroller.Relayer
	accountPool *pool.Pool
)

// Setup injects the process-wide collaborators. Called once from main before
// the router starts serving.
func Setup(r *rcontroller.Relayer, p *pool.Pool) {
	relayer = r
	accountPool = p
}

// RelayMessages serves POST /v1/messages: the Anthropic Messages API backed
// by whichever provider the pool selects.
func RelayMessages(c *gin.Context) {
	ctx := gmw.Ctx(c)
	lg := gmw.GetLogger(c)
	startTime := time.Now()

	var req relaymodel.ClaudeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, &relaymodel.Error{
			Message: "invalid request body: " + err.Error(),
			Type:    relaymodel.ErrTypeInvalidRequest,
		})
		return
	}
	if err := req.Validate(); err != nil {
		abortWithError(c, http.StatusBadRequest, &relaymodel.Error{
			Message: err.Error(),
			Type:    relaymodel.ErrTypeInvalidRequest,
		})
		return
	}

	provider, bizErr := relayer.ResolveProvider(c.GetHeader("X-Provider"))
	if bizErr != nil {
		abortWithError(c, bizErr.StatusCode, &bizErr.Error)
		return
	}

	var usage relaymodel.Usage
	trackUsage := func(ev relaymodel.StreamEvent) {
		if ev.Type == relaymodel.EventMessageStart && ev.Message != nil {
			usage.InputTokens = ev.Message.Usage.InputTokens
		}
		if ev.Type == relaymodel.EventMessageDelta && ev.Usage != nil {
			usage.OutputTokens = ev.Usage.OutputTokens
			if ev.Usage.InputTokens > 0 {
				usage.InputTokens = ev.Usage.InputTokens
			}
		}
	}

	status := http.StatusOK
	if req.IsStream() {
		bizErr = relayStream(c, ctx, provider, &req, trackUsage)
	} else {
		bizErr = relayBlocking(c, ctx, provider, &req, trackUsage)
	}
	if bizErr != nil {
		status = bizErr.StatusCode
		lg.Warn("relay request failed",
			zap.String("provider", provider),
			zap.Int("status", status),
			zap.Int64("elapsed_ms", helper.CalcElapsedTime(startTime)),
			zap.String("reason", bizErr.Message))
		abortWithError(c, status, &bizErr.Error)
	} else {
		lg.Info("relay request completed",
			zap.String("provider", provider),
			zap.Int64("elapsed_ms", helper.CalcElapsedTime(startTime)),
			zap.Int("input_tokens", usage.InputTokens),
			zap.Int("output_tokens", usage.OutputTokens))
	}

	monitor.ObserveRelayRequest(provider, req.Model, status, time.Since(startTime))
	monitor.ObserveTokens(provider, req.Model, usage.InputTokens, usage.OutputTokens)
}

func relayStream(c *gin.Context, ctx context.Context, provider string, req *relaymodel.ClaudeRequest, track func(relaymodel.StreamEvent)) *relaymodel.ErrorWithStatusCode {
	headerWritten := false
	emit := func(ev relaymodel.StreamEvent) error {
		if !headerWritten {
			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")
			c.Writer.WriteHeader(http.StatusOK)
			headerWritten = true
		}
		track(ev)
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, raw); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}
	return relayer.Relay(ctx, provider, req, emit)
}

func relayBlocking(c *gin.Context, ctx context.Context, provider string, req *relaymodel.ClaudeRequest, track func(relaymodel.StreamEvent)) *relaymodel.ErrorWithStatusCode {
	collector := rcontroller.NewCollector()
	emit := func(ev relaymodel.StreamEvent) error {
		track(ev)
		collector.Push(ev)
		return nil
	}
	if bizErr := relayer.Relay(ctx, provider, req, emit); bizErr != nil {
		return bizErr
	}
	resp, streamErr := collector.Response()
	if streamErr != nil {
		return &relaymodel.ErrorWithStatusCode{
			StatusCode: http.StatusBadGateway,
			Error:      *streamErr,
		}
	}
	c.JSON(http.StatusOK, resp)
	return nil
}

// abortWithError writes the Anthropic error envelope, unless the response has
// already started streaming, in which case the terminal error event has been
// emitted inside the stream and there is nothing left to write.
func abortWithError(c *gin.Context, status int, errObj *relaymodel.Error) {
	if c.Writer.Written() {
		return
	}
	message := helper.MessageWithRequestId(errObj.Message, c.GetString(helper.RequestIdKey))
	c.JSON(status, gin.H{
		"type": "error",
		"error": gin.H{
			"message": message,
			"type":    errObj.Type,
		},
	})
}
