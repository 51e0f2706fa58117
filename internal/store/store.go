// Package store persists chats, messages, stream ids, documents and
// suggestions through gorm on top of the shared database handle.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatbff/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

// New wraps an opened *sql.DB. driver is "sqlite3" or "mysql".
func New(sqlDB *sql.DB, driver string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		dialector = &sqlite.Dialector{DriverName: "sqlite3", Conn: sqlDB}
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: sqlDB})
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Store{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := s.db.WithContext(ctx).First(&chat, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &chat, nil
}

func (s *Store) SaveChat(ctx context.Context, chat *models.Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(chat).Error; err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func (s *Store) UpdateChatTitle(ctx context.Context, id, title string) error {
	res := s.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("update chat title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes the chat with its messages and stream ids and returns
// the deleted row.
func (s *Store) DeleteChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&chat, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Where("chat_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("chat_id = ?", id).Delete(&models.Stream{}).Error; err != nil {
			return fmt.Errorf("delete streams: %w", err)
		}
		if err := tx.Delete(&models.Chat{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats pages through a user's chats newest first. startingAfter returns
// chats created after the cursor chat, endingBefore those created before it.
func (s *Store) ListChats(ctx context.Context, userID string, limit int, startingAfter, endingBefore string) ([]models.Chat, bool, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	switch {
	case startingAfter != "":
		cursor, err := s.GetChat(ctx, startingAfter)
		if err != nil {
			return nil, false, err
		}
		q = q.Where("created_at > ?", cursor.CreatedAt)
	case endingBefore != "":
		cursor, err := s.GetChat(ctx, endingBefore)
		if err != nil {
			return nil, false, err
		}
		q = q.Where("created_at < ?", cursor.CreatedAt)
	}

	var chats []models.Chat
	if err := q.Order("created_at DESC").Limit(limit + 1).Find(&chats).Error; err != nil {
		return nil, false, fmt.Errorf("list chats: %w", err)
	}
	hasMore := len(chats) > limit
	if hasMore {
		chats = chats[:limit]
	}
	return chats, hasMore, nil
}

// DeleteAllChats removes every chat the user owns and reports how many.
func (s *Store) DeleteAllChats(ctx context.Context, userID string) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := func() *gorm.DB {
			return tx.Model(&models.Chat{}).Select("id").Where("user_id = ?", userID)
		}
		if err := tx.Where("chat_id IN (?)", owned()).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("chat_id IN (?)", owned()).Delete(&models.Stream{}).Error; err != nil {
			return fmt.Errorf("delete streams: %w", err)
		}
		res := tx.Where("user_id = ?", userID).Delete(&models.Chat{})
		if res.Error != nil {
			return fmt.Errorf("delete chats: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func (s *Store) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return msgs, nil
}

// SaveMessages appends messages. Transient data parts are stripped and the
// legacy attachments column is always written as an empty list.
func (s *Store) SaveMessages(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]models.Message, len(msgs))
	for i, m := range msgs {
		m.Parts = m.PersistentParts()
		m.Attachments = []json.RawMessage{}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		rows[i] = m
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("save messages: %w", err)
	}
	return nil
}

// CountUserMessagesSince counts user-authored messages across the user's chats.
func (s *Store) CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.user_id = ? AND messages.role = ? AND messages.created_at >= ?", userID, models.RoleUser, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *Store) CreateStream(ctx context.Context, streamID, chatID string) error {
	row := models.Stream{ID: streamID, ChatID: chatID, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create stream id: %w", err)
	}
	return nil
}

// LatestStreamID returns the most recent stream id of the chat.
func (s *Store) LatestStreamID(ctx context.Context, chatID string) (string, error) {
	var row models.Stream
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at DESC").Take(&row).Error
	if err != nil {
		return "", notFound(err)
	}
	return row.ID, nil
}

// DeleteStreamsBefore removes stream ids older than cutoff.
func (s *Store) DeleteStreamsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.Stream{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete streams: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SaveDocument stores a new version of the document.
func (s *Store) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// LatestDocument returns the newest version of the document.
func (s *Store) LatestDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("id = ?", id).Order("created_at DESC").Take(&doc).Error; err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

func (s *Store) SaveSuggestions(ctx context.Context, suggestions []models.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&suggestions).Error; err != nil {
		return fmt.Errorf("save suggestions: %w", err)
	}
	return nil
}
