package random

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// GetUUID generates a UUID and returns it as a string without hyphens.
func GetUUID() string {
	code := uuid.New().String()
	return strings.Replace(code, "-", "", -1)
}

const keyNumbers = "0123456789"

// GetRandomNumberString generates a random string of the specified length
// using only numeric characters (0-9). It uses crypto/rand for secure
// random number generation.
func GetRandomNumberString(length int) string {
	key := make([]byte, length)
	for i := range length {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyNumbers))))
		if err != nil {
			// This is unlikely to result in an error, especially on Linux, so it's safe to keep as is.
			panic(err)
		}
		key[i] = keyNumbers[n.Int64()]
	}
	return string(key)
}

// MessageID returns an Anthropic-style message identifier.
func MessageID() string {
	return "msg_" + GetUUID()[:24]
}

// ToolUseID returns an Anthropic-style tool_use identifier.
func ToolUseID() string {
	return "toolu_" + GetUUID()[:24]
}
