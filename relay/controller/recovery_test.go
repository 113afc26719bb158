package controller

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"claude-relay/common/config"
	relaymodel "claude-relay/relay/model"
	"claude-relay/relay/pool"
	"claude-relay/relay/toolresult"
)

func newTestRelayer() *Relayer {
	return NewRelayer(pool.New(nil), toolresult.NewCache(config.ToolResultCacheSize))
}

func TestClassifyHTTPErrorMissingToolResult(t *testing.T) {
	body := []byte(`{"error":{"message":"messages.2: tool_use ids were found without tool_result blocks: toolu_01AbCdEf","type":"invalid_request_error"}}`)
	fail := classifyHTTPError(http.StatusBadRequest, body)
	require.Equal(t, failToolResultMissing, fail.kind)
	require.Equal(t, "toolu_01AbCdEf", fail.missingToolID)
}

func TestClassifyHTTPErrorTooLarge(t *testing.T) {
	body := []byte(`{"message":"Improperly formed request","__type":"ValidationException"}`)
	fail := classifyHTTPError(http.StatusBadRequest, body)
	require.Equal(t, failTooLarge, fail.kind)
}

func TestClassifyHTTPErrorRetryable(t *testing.T) {
	fail := classifyHTTPError(http.StatusTooManyRequests, []byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	require.Equal(t, failRateLimited, fail.kind)

	fail = classifyHTTPError(http.StatusBadGateway, nil)
	require.Equal(t, failServerError, fail.kind)
}

func TestClassifyHTTPErrorFatal(t *testing.T) {
	fail := classifyHTTPError(http.StatusUnauthorized, []byte(`{"error":{"message":"bad key"}}`))
	require.Equal(t, failFatal, fail.kind)
	require.Equal(t, relaymodel.ErrTypeAuthentication, fail.errType)

	fail = classifyHTTPError(http.StatusBadRequest, []byte(`{"error":{"message":"unknown field","type":"invalid_request_error"}}`))
	require.Equal(t, failFatal, fail.kind)
}

func TestClassifyNativeErrorPriority(t *testing.T) {
	// A message naming an unanswered tool call wins over its error type.
	fail := classifyNativeError(&relaymodel.Error{
		Message: "tool_result missing for toolu_9zz",
		Type:    relaymodel.ErrTypeInvalidRequest,
	})
	require.Equal(t, failToolResultMissing, fail.kind)
	require.Equal(t, "toolu_9zz", fail.missingToolID)

	fail = classifyNativeError(&relaymodel.Error{Message: "Input is too long for requested model"})
	require.Equal(t, failTooLarge, fail.kind)

	fail = classifyNativeError(&relaymodel.Error{Message: "slow down", Type: relaymodel.ErrTypeRateLimit})
	require.Equal(t, failRateLimited, fail.kind)

	fail = classifyNativeError(&relaymodel.Error{Message: "internal"})
	require.Equal(t, failServerError, fail.kind)
}

func TestMissingToolResultIDRequiresContext(t *testing.T) {
	// A bare id without any tool_result complaint must not trigger splicing.
	require.Empty(t, missingToolResultID("unexpected token toolu_01 in field x"))
	require.Equal(t, "toolu_01", missingToolResultID("no tool_result found for toolu_01"))
}

func TestShouldSwitchToFallback(t *testing.T) {
	// The primary refused the connection outright.
	require.True(t, shouldSwitchToFallback(&failure{kind: failTransport}, false, "https://fb"))
	// The primary answered 5xx through the whole retry budget without ever
	// delivering a payload byte.
	require.True(t, shouldSwitchToFallback(&failure{kind: failServerError}, false, "https://fb"))

	// Bytes arrived, the stream broke mid-flight: same endpoint, no switch.
	require.False(t, shouldSwitchToFallback(&failure{kind: failServerError, gotBytes: true}, false, "https://fb"))
	// One switch per request.
	require.False(t, shouldSwitchToFallback(&failure{kind: failTransport}, true, "https://fb"))
	// Providers without a documented fallback never switch.
	require.False(t, shouldSwitchToFallback(&failure{kind: failTransport}, false, ""))
	require.False(t, shouldSwitchToFallback(&failure{kind: failRateLimited}, false, "https://fb"))
}

func spliceFixture() *relaymodel.ClaudeRequest {
	return &relaymodel.ClaudeRequest{
		Model: "claude-sonnet-4",
		Messages: []relaymodel.Message{
			{Role: relaymodel.RoleUser, Content: "read the file"},
			{Role: relaymodel.RoleAssistant, Content: []relaymodel.ContentBlock{
				{Type: relaymodel.ContentTypeToolUse, ID: "toolu_1", Name: "read_file",
					Input: map[string]any{"path": "a.txt"}},
			}},
			{Role: relaymodel.RoleUser, Content: "continue"},
		},
	}
}

func TestSpliceToolResultFromCache(t *testing.T) {
	r := newTestRelayer()
	r.results.Put("toolu_1", "file contents here")

	spliced, ok := r.spliceToolResult(spliceFixture(), "toolu_1")
	require.True(t, ok)
	require.Len(t, spliced.Messages, 3)

	// The result lands at the head of the user turn that follows the call.
	blocks := spliced.Messages[2].Blocks()
	require.Equal(t, relaymodel.ContentTypeToolResult, blocks[0].Type)
	require.Equal(t, "toolu_1", blocks[0].ToolUseID)
	require.Equal(t, "file contents here", blocks[0].Content)
	require.Equal(t, relaymodel.ContentTypeText, blocks[1].Type)
}

func TestSpliceToolResultPlaceholderWhenUncached(t *testing.T) {
	r := newTestRelayer()
	req := spliceFixture()
	req.Messages = req.Messages[:2] // tool call is the last turn

	spliced, ok := r.spliceToolResult(req, "toolu_1")
	require.True(t, ok)
	require.Len(t, spliced.Messages, 3)
	require.Equal(t, relaymodel.RoleUser, spliced.Messages[2].Role)

	blocks := spliced.Messages[2].Blocks()
	require.Len(t, blocks, 1)
	require.Contains(t, blocks[0].Content, "unavailable")
}

func TestSpliceToolResultUnknownID(t *testing.T) {
	r := newTestRelayer()
	_, ok := r.spliceToolResult(spliceFixture(), "toolu_other")
	require.False(t, ok)
}

func TestSpliceToolResultAddsExactlyOne(t *testing.T) {
	r := newTestRelayer()
	r.results.Put("toolu_1", "cached")
	spliced, ok := r.spliceToolResult(spliceFixture(), "toolu_1")
	require.True(t, ok)

	count := 0
	for i := range spliced.Messages {
		for _, block := range spliced.Messages[i].Blocks() {
			if block.Type == relaymodel.ContentTypeToolResult {
				count++
			}
		}
	}
	require.Equal(t, 1, count)
}

func compressionFixture(turns, textLen int) *relaymodel.ClaudeRequest {
	long := make([]byte, textLen)
	for i := range long {
		long[i] = 'x'
	}
	req := &relaymodel.ClaudeRequest{Model: "claude-sonnet-4"}
	for i := 0; i < turns; i++ {
		role := relaymodel.RoleUser
		if i%2 == 1 {
			role = relaymodel.RoleAssistant
		}
		req.Messages = append(req.Messages, relaymodel.Message{Role: role, Content: string(long)})
	}
	return req
}

func payloadSize(t *testing.T, req *relaymodel.ClaudeRequest) int {
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return len(raw)
}

func TestCompressRequestMonotonic(t *testing.T) {
	req := compressionFixture(20, 8000)
	prev := payloadSize(t, req)
	for level := 1; level <= 3; level++ {
		size := payloadSize(t, compressRequest(req, level))
		require.LessOrEqual(t, size, prev, "level %d grew the payload", level)
		prev = size
	}
}

func TestCompressRequestLevelCapped(t *testing.T) {
	req := compressionFixture(20, 8000)
	require.Equal(t,
		payloadSize(t, compressRequest(req, 3)),
		payloadSize(t, compressRequest(req, 7)))
}

func TestCompressRequestKeepsEndpoints(t *testing.T) {
	req := compressionFixture(20, 50)
	out := compressRequest(req, 2)

	// First message, omission notice, then the last four turns.
	require.Len(t, out.Messages, 6)
	require.Equal(t, req.Messages[0].PlainText(), out.Messages[0].PlainText())
	require.Contains(t, out.Messages[1].PlainText(), "omitted")
	require.Equal(t, req.Messages[19].PlainText(), out.Messages[5].PlainText())

	// The original request is untouched.
	require.Len(t, req.Messages, 20)
}

func TestCompressRequestTruncatesToolResults(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'y'
	}
	req := &relaymodel.ClaudeRequest{
		Model: "claude-sonnet-4",
		Messages: []relaymodel.Message{
			{Role: relaymodel.RoleUser, Content: []relaymodel.ContentBlock{
				{Type: relaymodel.ContentTypeToolResult, ToolUseID: "toolu_1", Content: string(long)},
			}},
		},
	}
	out := compressRequest(req, 3)
	content := out.Messages[0].Blocks()[0].Content.(string)
	require.LessOrEqual(t, len(content), 1000+len("\n[truncated]"))
}
