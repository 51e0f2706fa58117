package models

import "time"

// UserType selects the entitlement tier.
type UserType string

const (
	UserTypeGuest   UserType = "guest"
	UserTypeRegular UserType = "regular"
)

// User is an account able to own chats.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Type         UserType  `json:"type"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Principal is the identity attached to one request.
type Principal struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Type  UserType `json:"type"`
	// ViaBearer is set when the identity came from a bearer token.
	ViaBearer bool `json:"-"`
}
