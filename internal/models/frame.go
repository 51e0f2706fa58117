package models

import "encoding/json"

// Frame types of the UI message stream.
const (
	FrameStart               = "start"
	FrameStartStep           = "start-step"
	FrameTextStart           = "text-start"
	FrameTextDelta           = "text-delta"
	FrameTextEnd             = "text-end"
	FrameReasoningStart      = "reasoning-start"
	FrameReasoningDelta      = "reasoning-delta"
	FrameReasoningEnd        = "reasoning-end"
	FrameToolInputAvailable  = "tool-input-available"
	FrameToolOutputAvailable = "tool-output-available"
	FrameToolOutputError     = "tool-output-error"
	FrameFinishStep          = "finish-step"
	FrameFinish              = "finish"
	FrameError               = "error"
)

// Frame is one event of the outbound stream, written as `data: <json>`.
type Frame struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	MessageID  string          `json:"messageId,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
	Data       any             `json:"data,omitempty"`
	Transient  bool            `json:"transient,omitempty"`
}

// DataFrame builds a data-<name> frame.
func DataFrame(name string, data any, transient bool) Frame {
	return Frame{Type: dataPrefix + name, Data: data, Transient: transient}
}
