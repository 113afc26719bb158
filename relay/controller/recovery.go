package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	relaymodel "claude-relay/relay/model"
)

// failureKind orders the recovery strategies: each attempt failure maps to
// exactly one kind, checked by the relay loop from most to least specific.
type failureKind int

const (
	// failToolResultMissing: the backend rejected a conversation whose
	// tool_use has no matching tool_result. Recovered once per request by
	// splicing the cached result back into history.
	failToolResultMissing failureKind = iota
	// failTooLarge: the request body exceeded a backend size limit.
	// Recovered by progressive history compression.
	failTooLarge
	// failRateLimited: 429. Retried with exponential backoff on the same
	// account.
	failRateLimited
	// failServerError: 5xx or a mid-stream disconnect after bytes arrived.
	// Retried with backoff, excluding the failing account.
	failServerError
	// failTransport: the connection never yielded a byte. Eligible for the
	// one-shot fallback endpoint switch.
	failTransport
	// failFatal: not recoverable; surfaced to the client as-is.
	failFatal
)

// failure is the classified outcome of one attempt.
type failure struct {
	kind          failureKind
	statusCode    int
	message       string
	errType       string
	code          any
	requestID     string
	missingToolID string
	// emitted marks failures that happened after canonical events reached
	// the client. No recovery path may run once this is set.
	emitted bool
	// gotBytes marks failures that happened after the upstream delivered at
	// least one payload byte. The fallback endpoint is only consulted when
	// the primary never delivered anything.
	gotBytes bool
}

// shouldSwitchToFallback reports whether the next attempt should target the
// provider's fallback endpoint: at most once per request, and only when the
// primary endpoint failed without delivering a single byte.
func shouldSwitchToFallback(fail *failure, alreadyFallback bool, fallbackURL string) bool {
	if alreadyFallback || fallbackURL == "" || fail.gotBytes {
		return false
	}
	return fail.kind == failTransport || fail.kind == failServerError
}

var toolUseIDPattern = regexp.MustCompile(`toolu_[A-Za-z0-9]+`)

// missingToolResultID extracts the tool_use id from an error message that
// complains about an unanswered tool call. Empty means the message is about
// something else.
func missingToolResultID(message string) string {
	if !strings.Contains(message, "tool_result") && !strings.Contains(message, "toolResult") {
		return ""
	}
	return toolUseIDPattern.FindString(message)
}

// tooLargeMarkers are the substrings the backends use to reject oversized
// conversations. Matched case-insensitively.
var tooLargeMarkers = []string{
	"improperly formed request",
	"input is too long",
	"too large",
	"request_too_large",
	"exceeds the maximum",
	"context length",
}

func looksTooLarge(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range tooLargeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classifyHTTPError maps a non-2xx upstream response to a failure.
func classifyHTTPError(status int, body []byte) *failure {
	message, errType, code := parseErrorBody(body)
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", status)
	}

	fail := &failure{statusCode: status, message: message, errType: errType, code: code}
	switch {
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		if id := missingToolResultID(message); id != "" {
			fail.kind = failToolResultMissing
			fail.missingToolID = id
		} else if looksTooLarge(message) {
			fail.kind = failTooLarge
		} else {
			fail.kind = failFatal
			if fail.errType == "" {
				fail.errType = relaymodel.ErrTypeInvalidRequest
			}
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		fail.kind = failFatal
		if fail.errType == "" {
			fail.errType = relaymodel.ErrTypeAuthentication
		}
	case status == http.StatusTooManyRequests:
		fail.kind = failRateLimited
		if fail.errType == "" {
			fail.errType = relaymodel.ErrTypeRateLimit
		}
	case status >= 500:
		fail.kind = failServerError
	default:
		fail.kind = failFatal
	}
	return fail
}

// classifyNativeError maps an in-stream backend error (arriving before any
// canonical output) to a failure using the same rules as HTTP errors.
func classifyNativeError(err *relaymodel.Error) *failure {
	if err == nil {
		return &failure{kind: failServerError, message: "upstream reported an unspecified error"}
	}
	fail := &failure{message: err.Message, errType: err.Type, code: err.Code}
	switch {
	case missingToolResultID(err.Message) != "":
		fail.kind = failToolResultMissing
		fail.missingToolID = missingToolResultID(err.Message)
	case looksTooLarge(err.Message):
		fail.kind = failTooLarge
	case err.Type == relaymodel.ErrTypeRateLimit:
		fail.kind = failRateLimited
		fail.statusCode = http.StatusTooManyRequests
	case err.Type == relaymodel.ErrTypeInvalidRequest:
		fail.kind = failFatal
		fail.statusCode = http.StatusBadRequest
	default:
		fail.kind = failServerError
	}
	return fail
}

// parseErrorBody pulls message/type/code out of the common upstream error
// shapes: {"error":{...}} and {"message":...,"__type":...}.
func parseErrorBody(body []byte) (message, errType string, code any) {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
		Type    string `json:"__type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(string(body)), "", nil
	}
	if envelope.Error != nil {
		return envelope.Error.Message, envelope.Error.Type, envelope.Error.Code
	}
	return envelope.Message, envelope.Type, nil
}

// spliceToolResult inserts exactly one tool_result answering toolID into a
// copy of the request, immediately after the assistant turn that issued the
// tool_use. Content comes from the recovery cache when available, otherwise a
// placeholder that lets the conversation proceed. The second return reports
// whether the originating tool_use was found at all.
func (r *Relayer) spliceToolResult(req *relaymodel.ClaudeRequest, toolID string) (*relaymodel.ClaudeRequest, bool) {
	if toolID == "" {
		return req, false
	}
	origin := -1
	for i := range req.Messages {
		for _, block := range req.Messages[i].Blocks() {
			if block.Type == relaymodel.ContentTypeToolUse && block.ID == toolID {
				origin = i
			}
		}
	}
	if origin < 0 {
		return req, false
	}

	content, ok := r.results.Get(toolID)
	if !ok {
		content = "Tool result unavailable. The original output was not retained; proceed without it."
	}
	result := relaymodel.ContentBlock{
		Type:      relaymodel.ContentTypeToolResult,
		ToolUseID: toolID,
		Content:   content,
	}

	out := *req
	out.Messages = make([]relaymodel.Message, 0, len(req.Messages)+1)
	out.Messages = append(out.Messages, req.Messages[:origin+1]...)

	// If the next turn is already a user message, prepend the result to it so
	// role alternation is preserved; otherwise insert a fresh user turn.
	if origin+1 < len(req.Messages) && req.Messages[origin+1].Role == relaymodel.RoleUser {
		next := req.Messages[origin+1]
		next.Content = append([]relaymodel.ContentBlock{result}, next.Blocks()...)
		out.Messages = append(out.Messages, next)
		out.Messages = append(out.Messages, req.Messages[origin+2:]...)
	} else {
		out.Messages = append(out.Messages, relaymodel.Message{
			Role:    relaymodel.RoleUser,
			Content: []relaymodel.ContentBlock{result},
		})
		out.Messages = append(out.Messages, req.Messages[origin+1:]...)
	}
	return &out, true
}
