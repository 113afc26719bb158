package kiro

import (
	"fmt"
	"strings"

	relaymodel "claude-relay/relay/model"
)

// The service caps tool descriptions at 10240 bytes; leave room for the
// pointer text substituted on overflow.
const maxToolDescLen = 10237

// convertTools reshapes canonical tool specs into the wire envelope. A
// description over the per-tool ceiling is relocated verbatim into the system
// prompt under a per-tool heading, and the exposed description becomes a
// pointer to that heading. The second return value is the accumulated system
// prompt addendum, empty when nothing overflowed.
func convertTools(tools []relaymodel.Tool) ([]toolWrapper, string) {
	if len(tools) == 0 {
		return nil, ""
	}

	var out []toolWrapper
	var notes strings.Builder
	for _, tool := range tools {
		desc := tool.Description
		if len(desc) > maxToolDescLen {
			if notes.Len() == 0 {
				notes.WriteString("# Tool Reference\n")
			}
			fmt.Fprintf(&notes, "\n## Tool: %s\n%s\n", tool.Name, desc)
			desc = fmt.Sprintf("See the system prompt section %q for the full description.",
				"## Tool: "+tool.Name)
		}

		schema := tool.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, toolWrapper{ToolSpecification: toolSpecification{
			Name:        tool.Name,
			Description: desc,
			InputSchema: inputSchema{JSON: schema},
		}})
	}
	return out, notes.String()
}

// pathLikeKeys are input fields whose presence alongside empty content marks
// a payload the service truncated rather than a legitimately empty call.
var pathLikeKeys = []string{"path", "file_path", "filePath", "filename", "file"}

// inputLooksTruncated reports whether a tool input matches the observed
// truncation signature: a wholly empty payload, or an empty content-carrying
// field next to a populated path-like field. A legitimately empty file write
// can trip this heuristic; that false positive is accepted as the lesser
// evil versus surfacing a confusing empty call.
func inputLooksTruncated(input map[string]any) bool {
	if len(input) == 0 {
		return true
	}
	hasPath := false
	for _, key := range pathLikeKeys {
		if s, ok := input[key].(string); ok && s != "" {
			hasPath = true
			break
		}
	}
	if !hasPath {
		return false
	}
	for _, key := range []string{"content", "text", "new_str", "file_text"} {
		if v, present := input[key]; present {
			if s, ok := v.(string); ok && s == "" {
				return true
			}
		}
	}
	return false
}

// sanitizeToolUse substitutes a synthetic shell-style call for a tool use
// whose input the service truncated, so the caller sees an actionable
// instruction instead of an empty invocation.
func sanitizeToolUse(tu toolUse) toolUse {
	if !inputLooksTruncated(tu.Input) {
		return tu
	}
	return toolUse{
		ToolUseID: tu.ToolUseID,
		Name:      "shell",
		Input: map[string]any{
			"command": "echo 'The previous tool input was truncated by the provider. Retry the operation in smaller chunks.'",
		},
	}
}
