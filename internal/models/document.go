package models

import "time"

type DocumentKind string

const (
	DocumentText  DocumentKind = "text"
	DocumentCode  DocumentKind = "code"
	DocumentSheet DocumentKind = "sheet"
)

// Document is one version of an artifact; (ID, CreatedAt) is the key.
type Document struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time    `json:"createdAt" gorm:"primaryKey;autoCreateTime:false"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Kind      DocumentKind `json:"kind"`
	UserID    string       `json:"userId"`
}

type Suggestion struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	DocumentID        string    `json:"documentId"`
	DocumentCreatedAt time.Time `json:"documentCreatedAt"`
	OriginalText      string    `json:"originalText"`
	SuggestedText     string    `json:"suggestedText"`
	Description       string    `json:"description"`
	IsResolved        bool      `json:"isResolved"`
	UserID            string    `json:"userId"`
	CreatedAt         time.Time `json:"createdAt"`
}
