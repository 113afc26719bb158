// Package normalizer converts backend-native events into the canonical
// streaming event sequence. It owns content-block index allocation, the
// one-open-block-per-position invariant, buffered tool-call reassembly, and
// final stop-reason/usage emission. Every request gets a fresh Normalizer;
// nothing in this package is shared across streams.
package normalizer

import (
	"strings"

	"claude-relay/common/config"
	"claude-relay/relay/decoder"
	relaymodel "claude-relay/relay/model"
)

// toolAccumulator buffers one in-flight tool call. Canonical events for the
// call are withheld until the backend signals completion, since backends
// fragment tool JSON at arbitrary granularities and some never emit valid
// partial JSON.
type toolAccumulator struct {
	id     string
	name   string
	input  strings.Builder
	closed bool
}

// Normalizer is the per-stream state machine. Feed native events with Push
// and drain with Finish; both return canonical events in emission order.
type Normalizer struct {
	messageID string
	model     string

	started  bool
	finished bool

	nextIndex    int
	textOpen     bool
	thinkingOpen bool
	openIndex    int

	tools     map[string]*toolAccumulator
	toolOrder []string
	toolsUsed bool

	usage      relaymodel.Usage
	stopReason string

	// Text is held back until the first flush so phrase-level rewriting can
	// see whole sentences instead of single-token fragments.
	textBuf    strings.Builder
	flushed    bool
	replacer   func(string) string
	bufferSize int
}

// New returns a fresh per-stream normalizer. messageID and model populate the
// message_start stub; inputTokens seeds usage accounting for backends that
// never report it.
func New(messageID, model string, inputTokens int) *Normalizer {
	n := &Normalizer{
		messageID:  messageID,
		model:      model,
		tools:      make(map[string]*toolAccumulator),
		bufferSize: config.TextBufferThreshold,
		replacer:   identityReplacer,
	}
	n.usage.InputTokens = inputTokens
	return n
}

func identityReplacer(s string) string {
	if config.IdentityFrom == "" {
		return s
	}
	return strings.ReplaceAll(s, config.IdentityFrom, config.IdentityTo)
}

// Push consumes one native event and returns the canonical events it
// produces. Events after Finish (or after a fatal error) are dropped.
func (n *Normalizer) Push(ev decoder.NativeEvent) []relaymodel.StreamEvent {
	if n.finished {
		return nil
	}
	out := n.ensureStarted(nil)

	switch ev.Kind {
	case decoder.NativeText:
		out = n.pushText(out, ev.Text)
	case decoder.NativeThinking:
		out = n.pushThinking(out, ev.Text)
	case decoder.NativeToolUseStart:
		n.toolStart(ev.CallID, ev.ToolName)
	case decoder.NativeToolInputDelta:
		n.toolDelta(ev.CallID, ev.ToolName, ev.InputFragment)
	case decoder.NativeToolUseStop:
		out = n.toolStop(out, ev)
	case decoder.NativeUsage:
		n.mergeUsage(ev.Usage)
	case decoder.NativeStop:
		n.stopReason = mapStopReason(ev.StopReason)
		if ev.Usage != nil {
			n.mergeUsage(ev.Usage)
		}
	case decoder.NativeError:
		out = n.pushError(out, ev.Err)
	}
	return out
}

// Finish closes any open block and emits the terminal message_delta and
// message_stop pair. Safe to call once per stream; later calls return nil.
func (n *Normalizer) Finish() []relaymodel.StreamEvent {
	if n.finished {
		return nil
	}
	n.finished = true

	out := n.ensureStarted(nil)
	out = n.flushText(out, true)

	// Backends occasionally drop the completion signal for their final tool
	// call; finalize whatever is still buffered so the call is not lost.
	for _, id := range n.toolOrder {
		acc := n.tools[id]
		if !acc.closed {
			out = n.emitTool(out, acc, nil)
		}
	}
	out = n.closeOpenBlock(out)

	stop := n.stopReason
	if stop == "" {
		if n.toolsUsed {
			stop = relaymodel.StopReasonToolUse
		} else {
			stop = relaymodel.StopReasonEndTurn
		}
	}
	out = append(out,
		relaymodel.StreamEvent{
			Type:  relaymodel.EventMessageDelta,
			Delta: &relaymodel.EventDelta{StopReason: stop},
			Usage: &relaymodel.Usage{InputTokens: n.usage.InputTokens, OutputTokens: n.usage.OutputTokens},
		},
		relaymodel.StreamEvent{Type: relaymodel.EventMessageStop},
	)
	return out
}

// StopReason returns the effective stop reason after Finish.
func (n *Normalizer) StopReason() string {
	if n.stopReason != "" {
		return n.stopReason
	}
	if n.toolsUsed {
		return relaymodel.StopReasonToolUse
	}
	return relaymodel.StopReasonEndTurn
}

// Usage returns the accumulated token counts.
func (n *Normalizer) Usage() relaymodel.Usage { return n.usage }

func (n *Normalizer) ensureStarted(out []relaymodel.StreamEvent) []relaymodel.StreamEvent {
	if n.started {
		return out
	}
	n.started = true
	return append(out, relaymodel.StreamEvent{
		Type: relaymodel.EventMessageStart,
		Message: &relaymodel.ClaudeResponse{
			ID:      n.messageID,
			Type:    "message",
			Role:    relaymodel.RoleAssistant,
			Model:   n.model,
			Content: []relaymodel.ContentBlock{},
			Usage:   relaymodel.Usage{InputTokens: n.usage.InputTokens},
		},
	})
}

func (n *Normalizer) pushText(out []relaymodel.StreamEvent, text string) []relaymodel.StreamEvent {
	if text == "" {
		return out
	}
	if !n.flushed {
		n.textBuf.WriteString(text)
		if n.textBuf.Len() >= n.bufferSize || strings.ContainsAny(text, ".!?\n") {
			out = n.flushText(out, false)
		}
		return out
	}
	out = n.openText(out)
	return append(out, textDelta(n.openIndex, n.replacer(text)))
}

// flushText drains the pre-first-flush buffer. After it runs once, pushText
// streams fragments directly.
func (n *Normalizer) flushText(out []relaymodel.StreamEvent, force bool) []relaymodel.StreamEvent {
	if n.flushed && n.textBuf.Len() == 0 {
		return out
	}
	if n.textBuf.Len() == 0 {
		if !force {
			n.flushed = true
		}
		return out
	}
	text := n.replacer(n.textBuf.String())
	n.textBuf.Reset()
	n.flushed = true
	out = n.openText(out)
	return append(out, textDelta(n.openIndex, text))
}

func (n *Normalizer) pushThinking(out []relaymodel.StreamEvent, text string) []relaymodel.StreamEvent {
	if text == "" {
		return out
	}
	if !n.thinkingOpen {
		out = n.flushText(out, true)
		out = n.closeOpenBlock(out)
		out = append(out, relaymodel.StreamEvent{
			Type:         relaymodel.EventContentBlockStart,
			Index:        relaymodel.IndexOf(n.nextIndex),
			ContentBlock: &relaymodel.ContentBlock{Type: relaymodel.ContentTypeThinking},
		})
		n.openIndex = n.nextIndex
		n.nextIndex++
		n.thinkingOpen = true
	}
	return append(out, relaymodel.StreamEvent{
		Type:  relaymodel.EventContentBlockDelta,
		Index: relaymodel.IndexOf(n.openIndex),
		Delta: &relaymodel.EventDelta{Type: relaymodel.DeltaTypeThinking, Thinking: text},
	})
}

func (n *Normalizer) openText(out []relaymodel.StreamEvent) []relaymodel.StreamEvent {
	if n.textOpen {
		return out
	}
	out = n.closeOpenBlock(out)
	out = append(out, relaymodel.StreamEvent{
		Type:         relaymodel.EventContentBlockStart,
		Index:        relaymodel.IndexOf(n.nextIndex),
		ContentBlock: &relaymodel.ContentBlock{Type: relaymodel.ContentTypeText},
	})
	n.openIndex = n.nextIndex
	n.nextIndex++
	n.textOpen = true
	return out
}

// closeOpenBlock stops whichever text/thinking block is open, keeping the
// one-open-block-per-position invariant before a different kind starts.
func (n *Normalizer) closeOpenBlock(out []relaymodel.StreamEvent) []relaymodel.StreamEvent {
	if !n.textOpen && !n.thinkingOpen {
		return out
	}
	n.textOpen = false
	n.thinkingOpen = false
	return append(out, relaymodel.StreamEvent{
		Type:  relaymodel.EventContentBlockStop,
		Index: relaymodel.IndexOf(n.openIndex),
	})
}

func (n *Normalizer) toolStart(callID, name string) {
	if callID == "" {
		return
	}
	acc, ok := n.tools[callID]
	if !ok {
		acc = &toolAccumulator{id: callID}
		n.tools[callID] = acc
		n.toolOrder = append(n.toolOrder, callID)
	}
	if acc.name == "" {
		acc.name = name
	}
}

func (n *Normalizer) toolDelta(callID, name, fragment string) {
	if callID == "" {
		return
	}
	// A delta for an unknown call synthesizes the missing start.
	n.toolStart(callID, name)
	acc := n.tools[callID]
	if acc.closed {
		return
	}
	acc.input.WriteString(fragment)
}

func (n *Normalizer) toolStop(out []relaymodel.StreamEvent, ev decoder.NativeEvent) []relaymodel.StreamEvent {
	if ev.CallID == "" {
		return out
	}
	n.toolStart(ev.CallID, ev.ToolName)
	acc := n.tools[ev.CallID]
	if acc.closed {
		// Some backends repeat the completed call on the next event; emit once.
		return out
	}
	if ev.InputFragment != "" {
		acc.input.WriteString(ev.InputFragment)
	}
	return n.emitTool(out, acc, ev.Input)
}

// emitTool finalizes a buffered call as the complete canonical triple:
// content_block_start, one input_json_delta with the whole coerced input,
// content_block_stop.
func (n *Normalizer) emitTool(out []relaymodel.StreamEvent, acc *toolAccumulator, assembled any) []relaymodel.StreamEvent {
	acc.closed = true
	n.toolsUsed = true

	out = n.flushText(out, true)
	out = n.closeOpenBlock(out)

	input := FinalizeToolInput(acc.input.String(), assembled)
	index := n.nextIndex
	n.nextIndex++
	return append(out,
		relaymodel.StreamEvent{
			Type:  relaymodel.EventContentBlockStart,
			Index: relaymodel.IndexOf(index),
			ContentBlock: &relaymodel.ContentBlock{
				Type:  relaymodel.ContentTypeToolUse,
				ID:    acc.id,
				Name:  acc.name,
				Input: map[string]any{},
			},
		},
		relaymodel.StreamEvent{
			Type:  relaymodel.EventContentBlockDelta,
			Index: relaymodel.IndexOf(index),
			Delta: &relaymodel.EventDelta{Type: relaymodel.DeltaTypeInputJSON, PartialJSON: marshalInput(input)},
		},
		relaymodel.StreamEvent{
			Type:  relaymodel.EventContentBlockStop,
			Index: relaymodel.IndexOf(index),
		},
	)
}

func (n *Normalizer) pushError(out []relaymodel.StreamEvent, err *relaymodel.Error) []relaymodel.StreamEvent {
	n.finished = true
	out = n.flushText(out, true)
	out = n.closeOpenBlock(out)
	if err == nil {
		err = &relaymodel.Error{Message: "upstream error", Type: relaymodel.ErrTypeAPI}
	}
	return append(out, relaymodel.StreamEvent{Type: relaymodel.EventError, Error: err})
}

func (n *Normalizer) mergeUsage(u *relaymodel.Usage) {
	if u == nil {
		return
	}
	if u.InputTokens > 0 {
		n.usage.InputTokens = u.InputTokens
	}
	if u.OutputTokens > 0 {
		n.usage.OutputTokens = u.OutputTokens
	}
}

// mapStopReason folds backend stop vocabularies into the canonical one.
// Unknown values pass through untouched; an absent reason stays absent so the
// finish-time default (tool_use when any tool ran) can apply.
func mapStopReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "stop", "end_turn", "COMPLETE":
		return relaymodel.StopReasonEndTurn
	case "tool_use", "tool-calls", "tool_calls", "toolUse":
		return relaymodel.StopReasonToolUse
	case "max_tokens", "length", "MAX_TOKENS":
		return relaymodel.StopReasonMaxTokens
	case "stop_sequence":
		return relaymodel.StopReasonStopSequence
	default:
		return reason
	}
}

func textDelta(index int, text string) relaymodel.StreamEvent {
	return relaymodel.StreamEvent{
		Type:  relaymodel.EventContentBlockDelta,
		Index: relaymodel.IndexOf(index),
		Delta: &relaymodel.EventDelta{Type: relaymodel.DeltaTypeText, Text: text},
	}
}
