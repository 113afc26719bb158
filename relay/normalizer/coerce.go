package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FinalizeToolInput turns the accumulated input text (or an already-assembled
// value, when the backend delivered the call whole) into the coerced input
// object. Unparseable text degrades to an empty object rather than failing
// the stream.
func FinalizeToolInput(raw string, assembled any) any {
	if assembled != nil {
		return CoerceToolInput(assembled)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{}
	}
	// Some backends double-encode the arguments object as a JSON string.
	if s, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			v = inner
		}
	}
	return CoerceToolInput(v)
}

// CoerceToolInput recursively converts stringly-typed values into native
// ones: "true"/"false" to bool, numeric strings to numbers, and strings that
// parse as JSON arrays or objects to their parsed forms. Backends that
// serialize every tool argument as a string need this to round-trip inputs
// the way a tool schema expects.
func CoerceToolInput(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = CoerceToolInput(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = CoerceToolInput(item)
		}
		return val
	case string:
		return coerceString(val)
	default:
		return v
	}
}

func coerceString(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if looksNumeric(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return int(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 1 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return CoerceToolInput(v)
		}
	}
	return s
}

// looksNumeric pre-filters before ParseInt/ParseFloat so strings like
// "0x10" or padded values keep their original form.
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '-' && i == 0 && len(s) > 1:
		case c == '.' && !dot && i > 0 && i < len(s)-1:
			dot = true
		default:
			return false
		}
	}
	return true
}

func marshalInput(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
