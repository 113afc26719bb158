package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Bool reads an environment variable as a boolean, returning defaultValue when
// the variable is unset. Invalid values panic so misconfiguration is caught at
// startup rather than silently ignored.
func Bool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Sprintf("invalid boolean for %s: %q", key, v))
	}
	return b
}

// Int reads an environment variable as an integer, returning defaultValue when
// the variable is unset.
func Int(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid integer for %s: %q", key, v))
	}
	return i
}

// String reads an environment variable, returning defaultValue when unset.
func String(key string, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}
