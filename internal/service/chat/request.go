package chat

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"chatbff/internal/models"
)

const maxTextPartLength = 2000

// Request is the body of POST /chat.
type Request struct {
	ID                     string            `json:"id"`
	Message                models.Message    `json:"message"`
	SelectedChatModel      string            `json:"selectedChatModel"`
	SelectedVisibilityType models.Visibility `json:"selectedVisibilityType"`
	SearchEnabled          bool              `json:"searchEnabled"`
	MemoryEnabled          bool              `json:"memoryEnabled"`
	IncognitoMode          bool              `json:"incognitoMode"`
}

// Validate checks the request shape.
func (r *Request) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Message.ID == "" {
		return errors.New("message.id is required")
	}
	if r.Message.Role != models.RoleUser {
		return fmt.Errorf("message.role must be %q", models.RoleUser)
	}
	if len(r.Message.Parts) == 0 {
		return errors.New("message.parts must not be empty")
	}
	for i, p := range r.Message.Parts {
		switch p.Type {
		case models.PartText:
			if n := utf8.RuneCountInString(p.Text); n == 0 || n > maxTextPartLength {
				return fmt.Errorf("message.parts[%d]: text must be 1-%d characters", i, maxTextPartLength)
			}
		case models.PartFile, models.PartImage:
			if p.URL == "" {
				return fmt.Errorf("message.parts[%d]: url is required", i)
			}
		default:
			return fmt.Errorf("message.parts[%d]: unsupported type %q", i, p.Type)
		}
	}
	if r.SelectedChatModel == "" {
		return errors.New("selectedChatModel is required")
	}
	switch r.SelectedVisibilityType {
	case models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return errors.New("selectedVisibilityType must be public or private")
	}
	return nil
}
