package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PartType discriminates the Part union.
type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartFile           PartType = "file"
	PartImage          PartType = "image"
	PartToolInvocation PartType = "tool-invocation"
	PartData           PartType = "data"
)

const (
	toolPrefix = "tool-"
	dataPrefix = "data-"
)

// Tool invocation states.
const (
	ToolStateInputAvailable  = "input-available"
	ToolStateOutputAvailable = "output-available"
	ToolStateOutputError     = "output-error"
)

// Part is one element of a message. Exactly one group of fields is meaningful
// for a given Type.
type Part struct {
	Type PartType

	// text, reasoning
	Text string

	// file, image
	URL       string
	MediaType string
	Filename  string
	// Content holds resolved file bytes. It is never serialised.
	Content []byte

	Tool *ToolInvocation
	Data *DataPart
}

type ToolInvocation struct {
	ToolName   string
	ToolCallID string
	State      string
	Input      json.RawMessage
	Output     json.RawMessage
	ErrorText  string
}

// DataPart carries a data-* UI part. Raw is set instead when the stored type
// was not recognised, so the part re-encodes byte for byte.
type DataPart struct {
	Name      string
	Payload   json.RawMessage
	Transient bool
	Raw       json.RawMessage
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func FilePart(url, mediaType, filename string) Part {
	return Part{Type: PartFile, URL: url, MediaType: mediaType, Filename: filename}
}

// IsModelVisible reports whether the part is forwarded to the model.
func (p Part) IsModelVisible() bool {
	switch p.Type {
	case PartText, PartFile, PartImage:
		return true
	}
	return false
}

type partEnvelope struct {
	Type string `json:"type"`
}

type textWire struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type fileWire struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

type toolWire struct {
	Type       string          `json:"type"`
	ToolCallID string          `json:"toolCallId"`
	State      string          `json:"state"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// legacyToolWire is the flat or nested tool-invocation layout written by older
// clients.
type legacyToolWire struct {
	ToolName       string          `json:"toolName"`
	ToolCallID     string          `json:"toolCallId"`
	State          string          `json:"state"`
	Input          json.RawMessage `json:"input"`
	Output         json.RawMessage `json:"output"`
	ErrorText      string          `json:"errorText"`
	ToolInvocation *struct {
		ToolName   string          `json:"toolName"`
		ToolCallID string          `json:"toolCallId"`
		State      string          `json:"state"`
		Args       json.RawMessage `json:"args"`
		Result     json.RawMessage `json:"result"`
	} `json:"toolInvocation"`
}

type dataWire struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Transient bool            `json:"transient,omitempty"`
}

// ParsePart maps a stored or inbound part onto the canonical union. Any type
// with the tool- prefix becomes a tool invocation named by the remainder.
func ParsePart(raw []byte) (Part, error) {
	var env partEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Part{}, fmt.Errorf("decode part: %w", err)
	}

	switch {
	case env.Type == string(PartText) || env.Type == string(PartReasoning):
		var w textWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Part{}, fmt.Errorf("decode %s part: %w", env.Type, err)
		}
		return Part{Type: PartType(env.Type), Text: w.Text}, nil

	case env.Type == string(PartFile) || env.Type == string(PartImage):
		var w fileWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Part{}, fmt.Errorf("decode %s part: %w", env.Type, err)
		}
		return Part{Type: PartType(env.Type), URL: w.URL, MediaType: w.MediaType, Filename: w.Filename}, nil

	case env.Type == string(PartToolInvocation):
		var w legacyToolWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Part{}, fmt.Errorf("decode tool-invocation part: %w", err)
		}
		inv := &ToolInvocation{
			ToolName:   w.ToolName,
			ToolCallID: w.ToolCallID,
			State:      w.State,
			Input:      w.Input,
			Output:     w.Output,
			ErrorText:  w.ErrorText,
		}
		if n := w.ToolInvocation; n != nil {
			inv.ToolName, inv.ToolCallID, inv.State = n.ToolName, n.ToolCallID, legacyState(n.State)
			inv.Input, inv.Output = n.Args, n.Result
		}
		if inv.ToolName == "" {
			return Part{}, fmt.Errorf("tool-invocation part without toolName")
		}
		return Part{Type: PartToolInvocation, Tool: inv}, nil

	case strings.HasPrefix(env.Type, toolPrefix):
		var w toolWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Part{}, fmt.Errorf("decode %s part: %w", env.Type, err)
		}
		return Part{Type: PartToolInvocation, Tool: &ToolInvocation{
			ToolName:   strings.TrimPrefix(env.Type, toolPrefix),
			ToolCallID: w.ToolCallID,
			State:      w.State,
			Input:      w.Input,
			Output:     w.Output,
			ErrorText:  w.ErrorText,
		}}, nil

	case strings.HasPrefix(env.Type, dataPrefix):
		var w dataWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Part{}, fmt.Errorf("decode %s part: %w", env.Type, err)
		}
		return Part{Type: PartData, Data: &DataPart{
			Name:      strings.TrimPrefix(env.Type, dataPrefix),
			Payload:   w.Data,
			Transient: w.Transient,
		}}, nil
	}

	if env.Type == "" {
		return Part{}, fmt.Errorf("part without type")
	}
	kept := make(json.RawMessage, len(raw))
	copy(kept, raw)
	return Part{Type: PartData, Data: &DataPart{Name: env.Type, Raw: kept}}, nil
}

func legacyState(s string) string {
	switch s {
	case "result":
		return ToolStateOutputAvailable
	case "call", "partial-call":
		return ToolStateInputAvailable
	}
	return s
}

// UnmarshalJSON implements json.Unmarshaler through ParsePart.
func (p *Part) UnmarshalJSON(raw []byte) error {
	parsed, err := ParsePart(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON writes the canonical stored form.
func (p Part) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PartText, PartReasoning:
		return json.Marshal(textWire{Type: string(p.Type), Text: p.Text})
	case PartFile, PartImage:
		return json.Marshal(fileWire{Type: string(p.Type), URL: p.URL, MediaType: p.MediaType, Filename: p.Filename})
	case PartToolInvocation:
		if p.Tool == nil {
			return nil, fmt.Errorf("tool-invocation part without payload")
		}
		return json.Marshal(toolWire{
			Type:       toolPrefix + p.Tool.ToolName,
			ToolCallID: p.Tool.ToolCallID,
			State:      p.Tool.State,
			Input:      compactOrNil(p.Tool.Input),
			Output:     compactOrNil(p.Tool.Output),
			ErrorText:  p.Tool.ErrorText,
		})
	case PartData:
		if p.Data == nil {
			return nil, fmt.Errorf("data part without payload")
		}
		if len(p.Data.Raw) > 0 {
			return p.Data.Raw, nil
		}
		return json.Marshal(dataWire{
			Type:      dataPrefix + p.Data.Name,
			Data:      compactOrNil(p.Data.Payload),
			Transient: p.Data.Transient,
		})
	}
	return nil, fmt.Errorf("unknown part type %q", p.Type)
}

func compactOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
