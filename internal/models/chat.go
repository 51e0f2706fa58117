package models

import "time"

// Visibility controls who may read a chat.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// PlaceholderTitle is stored until the title task replaces it.
const PlaceholderTitle = "New chat"

// Chat groups a sequence of messages owned by one user.
type Chat struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Stream associates one assistant turn with its chat for resumption.
type Stream struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	ChatID    string    `json:"chatId"`
	CreatedAt time.Time `json:"createdAt"`
}
