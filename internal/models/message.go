package models

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one append-only entry of a chat transcript.
type Message struct {
	ID          string            `json:"id" gorm:"primaryKey"`
	ChatID      string            `json:"chatId,omitempty"`
	Role        Role              `json:"role"`
	Parts       []Part            `json:"parts" gorm:"type:text;serializer:json"`
	Attachments []json.RawMessage `json:"attachments" gorm:"type:text;serializer:json"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// PersistentParts returns the parts that belong in the transcript. data-*
// parts are UI notifications and are never stored; unrecognised stored parts
// are kept verbatim.
func (m Message) PersistentParts() []Part {
	out := make([]Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Type == PartData && (p.Data == nil || len(p.Data.Raw) == 0) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// TextContent concatenates the text parts of the message.
func (m Message) TextContent() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}
