package orchids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"claude-relay/relay/decoder"
)

func TestOrchidsDecoderTextStream(t *testing.T) {
	d := newStreamDecoder()
	stream := []byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":2}}\n\n" +
		"data: [DONE]\n\n")

	events := d.Feed(stream)
	require.Len(t, events, 4)
	require.Equal(t, "Hel", events[0].Text)
	require.Equal(t, "lo", events[1].Text)
	require.Equal(t, decoder.NativeUsage, events[2].Kind)
	require.Equal(t, 9, events[2].Usage.InputTokens)
	require.Equal(t, decoder.NativeStop, events[3].Kind)
	require.Equal(t, "stop", events[3].StopReason)
}

func TestOrchidsDecoderToolCallFragments(t *testing.T) {
	d := newStreamDecoder()
	stream := []byte("data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{\\\"city\\\":\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\"SF\\\"}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")

	events := d.Feed(stream)
	require.Len(t, events, 5)
	require.Equal(t, decoder.NativeToolUseStart, events[0].Kind)
	require.Equal(t, "call_1", events[0].CallID)
	require.Equal(t, "get_weather", events[0].ToolName)
	require.Equal(t, decoder.NativeToolInputDelta, events[1].Kind)
	require.Equal(t, decoder.NativeToolInputDelta, events[2].Kind)
	require.Equal(t, decoder.NativeToolUseStop, events[3].Kind)
	require.Equal(t, "call_1", events[3].CallID)
	require.Equal(t, decoder.NativeStop, events[4].Kind)
	require.Equal(t, "tool_calls", events[4].StopReason)
}

func TestOrchidsDecoderSynthesizesMissingCallID(t *testing.T) {
	d := newStreamDecoder()
	stream := []byte("data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"name\":\"get_weather\",\"arguments\":\"\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")

	events := d.Feed(stream)
	require.Len(t, events, 4)
	require.Equal(t, decoder.NativeToolUseStart, events[0].Kind)
	require.True(t, strings.HasPrefix(events[0].CallID, "toolu_"))
	require.Equal(t, "get_weather", events[0].ToolName)

	// Later fragments and the close event carry the synthesized id.
	require.Equal(t, decoder.NativeToolInputDelta, events[1].Kind)
	require.Equal(t, events[0].CallID, events[1].CallID)
	require.Equal(t, decoder.NativeToolUseStop, events[2].Kind)
	require.Equal(t, events[0].CallID, events[2].CallID)
}

func TestOrchidsDecoderErrorChunk(t *testing.T) {
	d := newStreamDecoder()
	events := d.Feed([]byte("data: {\"error\":{\"message\":\"quota exceeded\",\"code\":429}}\n\n"))
	require.Len(t, events, 1)
	require.Equal(t, decoder.NativeError, events[0].Kind)
	require.Equal(t, "quota exceeded", events[0].Err.Message)
}

func TestOrchidsDecoderFinishClosesDanglingCalls(t *testing.T) {
	d := newStreamDecoder()
	events := d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_9\",\"function\":{\"name\":\"f\",\"arguments\":\"{}\"}}]}}]}\n\n"))
	require.Len(t, events, 2)

	final := d.Finish()
	require.Len(t, final, 1)
	require.Equal(t, decoder.NativeToolUseStop, final[0].Kind)
	require.Equal(t, "call_9", final[0].CallID)
}
