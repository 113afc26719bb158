package helper

import (
	"fmt"
	"time"

	"claude-relay/common/random"
)

const RequestIdKey = "X-Request-Id"

// GenRequestID builds a sortable request identifier: timestamp prefix plus a
// random numeric suffix.
func GenRequestID() string {
	return GetTimeString() + random.GetRandomNumberString(8)
}

// GetTimestamp returns the current Unix timestamp in seconds.
func GetTimestamp() int64 {
	return time.Now().Unix()
}

// GetTimeString renders the current time as a sortable string with
// nanosecond disambiguation.
func GetTimeString() string {
	now := time.Now()
	return fmt.Sprintf("%s%d", now.Format("20060102150405"), now.UnixNano()%1e9)
}

// CalcElapsedTime returns milliseconds since start, rounding any positive
// sub-millisecond duration up to 1.
func CalcElapsedTime(start time.Time) int64 {
	elapsed := time.Since(start)
	ms := elapsed.Milliseconds()
	if ms == 0 && elapsed > 0 {
		return 1
	}
	return ms
}

// MessageWithRequestId appends the request id to a client-facing message so
// users can quote it in bug reports.
func MessageWithRequestId(message string, id string) string {
	return fmt.Sprintf("%s (request id: %s)", message, id)
}
