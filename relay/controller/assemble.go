package controller

import (
	"encoding/json"
	"strings"

	relaymodel "claude-relay/relay/model"
)

// Collector folds a canonical event stream into one assembled message for
// non-streaming responses. Feeding it the events in emission order yields the
// same content a streaming client would reconstruct.
type Collector struct {
	resp    relaymodel.ClaudeResponse
	jsonBuf map[int]*strings.Builder
	err     *relaymodel.Error
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{jsonBuf: make(map[int]*strings.Builder)}
}

// Push folds one event into the assembled message.
func (c *Collector) Push(ev relaymodel.StreamEvent) {
	switch ev.Type {
	case relaymodel.EventMessageStart:
		if ev.Message != nil {
			c.resp = *ev.Message
			c.resp.Content = nil
		}

	case relaymodel.EventContentBlockStart:
		if ev.ContentBlock != nil {
			c.resp.Content = append(c.resp.Content, *ev.ContentBlock)
		}

	case relaymodel.EventContentBlockDelta:
		if ev.Delta == nil || ev.Index == nil || *ev.Index >= len(c.resp.Content) {
			return
		}
		block := &c.resp.Content[*ev.Index]
		switch ev.Delta.Type {
		case relaymodel.DeltaTypeText:
			block.Text += ev.Delta.Text
		case relaymodel.DeltaTypeThinking:
			block.Thinking += ev.Delta.Thinking
		case relaymodel.DeltaTypeInputJSON:
			buf, ok := c.jsonBuf[*ev.Index]
			if !ok {
				buf = &strings.Builder{}
				c.jsonBuf[*ev.Index] = buf
			}
			buf.WriteString(ev.Delta.PartialJSON)
		}

	case relaymodel.EventContentBlockStop:
		if ev.Index == nil || *ev.Index >= len(c.resp.Content) {
			return
		}
		if buf, ok := c.jsonBuf[*ev.Index]; ok {
			var input any
			if err := json.Unmarshal([]byte(buf.String()), &input); err == nil {
				c.resp.Content[*ev.Index].Input = input
			}
			delete(c.jsonBuf, *ev.Index)
		}

	case relaymodel.EventMessageDelta:
		if ev.Delta != nil {
			c.resp.StopReason = ev.Delta.StopReason
			c.resp.StopSequence = ev.Delta.StopSequence
		}
		if ev.Usage != nil {
			c.resp.Usage.OutputTokens = ev.Usage.OutputTokens
			if ev.Usage.InputTokens > 0 {
				c.resp.Usage.InputTokens = ev.Usage.InputTokens
			}
		}

	case relaymodel.EventError:
		c.err = ev.Error
	}
}

// Response returns the assembled message, or the stream error when the
// stream terminated with one.
func (c *Collector) Response() (*relaymodel.ClaudeResponse, *relaymodel.Error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.resp.Content == nil {
		c.resp.Content = []relaymodel.ContentBlock{}
	}
	return &c.resp, nil
}
