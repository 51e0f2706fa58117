package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"chatbff/internal/config"
	"chatbff/internal/models"
	"chatbff/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	s, err := New(db, "sqlite3")
	require.NoError(t, err)
	return s
}

func seedChat(t *testing.T, s *Store, id, userID string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, s.SaveChat(context.Background(), &models.Chat{
		ID:         id,
		UserID:     userID,
		Title:      models.PlaceholderTitle,
		Visibility: models.VisibilityPrivate,
		CreatedAt:  createdAt,
	}))
}

func TestChatLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "u1", time.Now().UTC())

	chat, err := s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderTitle, chat.Title)

	require.NoError(t, s.UpdateChatTitle(ctx, "c1", "Weather in Paris"))
	chat, err = s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Weather in Paris", chat.Title)

	require.NoError(t, s.SaveMessages(ctx, []models.Message{{
		ID:     "m1",
		ChatID: "c1",
		Role:   models.RoleUser,
		Parts:  []models.Part{models.TextPart("hello")},
	}}))
	require.NoError(t, s.CreateStream(ctx, "s1", "c1"))

	deleted, err := s.DeleteChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", deleted.ID)

	_, err = s.GetChat(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	msgs, err := s.GetMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	_, err = s.LatestStreamID(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.DeleteChat(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessagesKeepPartsAndDropDataParts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "u1", time.Now().UTC())

	base := time.Now().UTC()
	require.NoError(t, s.SaveMessages(ctx, []models.Message{
		{ID: "m1", ChatID: "c1", Role: models.RoleUser, CreatedAt: base, Parts: []models.Part{
			models.TextPart("look"),
			models.FilePart("https://example.com/a.png", "image/png", "a.png"),
		}},
		{ID: "m2", ChatID: "c1", Role: models.RoleAssistant, CreatedAt: base.Add(time.Millisecond), Parts: []models.Part{
			{Type: models.PartToolInvocation, Tool: &models.ToolInvocation{
				ToolName: "getWeather", ToolCallID: "t1", State: models.ToolStateOutputAvailable,
				Input: json.RawMessage(`{"latitude":1,"longitude":2}`), Output: json.RawMessage(`{"ok":true}`),
			}},
			{Type: models.PartData, Data: &models.DataPart{Name: "image", Payload: json.RawMessage(`"x"`), Transient: true}},
			models.TextPart("sunny"),
		}},
	}))

	msgs, err := s.GetMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	require.Len(t, msgs[0].Parts, 2)
	assert.Equal(t, "a.png", msgs[0].Parts[1].Filename)

	require.Len(t, msgs[1].Parts, 2)
	assert.Equal(t, "getWeather", msgs[1].Parts[0].Tool.ToolName)
	assert.Equal(t, "sunny", msgs[1].Parts[1].Text)
	assert.NotNil(t, msgs[1].Attachments)
}

func TestListChatsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedChat(t, s, fmt.Sprintf("c%d", i), "u1", base.Add(time.Duration(i)*time.Minute))
	}
	seedChat(t, s, "other", "u2", base)

	chats, hasMore, err := s.ListChats(ctx, "u1", 2, "", "")
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, chats, 2)
	assert.Equal(t, "c4", chats[0].ID)
	assert.Equal(t, "c3", chats[1].ID)

	chats, hasMore, err = s.ListChats(ctx, "u1", 10, "", "c3")
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, chats, 3)
	assert.Equal(t, "c2", chats[0].ID)

	chats, _, err = s.ListChats(ctx, "u1", 10, "c2", "")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "c4", chats[0].ID)

	_, _, err = s.ListChats(ctx, "u1", 10, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAllChatsAndQuotaCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedChat(t, s, "a", "u1", now)
	seedChat(t, s, "b", "u1", now)
	seedChat(t, s, "c", "u2", now)

	require.NoError(t, s.SaveMessages(ctx, []models.Message{
		{ID: "1", ChatID: "a", Role: models.RoleUser, CreatedAt: now.Add(-2 * time.Hour), Parts: []models.Part{models.TextPart("x")}},
		{ID: "2", ChatID: "b", Role: models.RoleUser, CreatedAt: now.Add(-time.Hour), Parts: []models.Part{models.TextPart("y")}},
		{ID: "3", ChatID: "b", Role: models.RoleAssistant, CreatedAt: now.Add(-time.Hour), Parts: []models.Part{models.TextPart("z")}},
		{ID: "4", ChatID: "a", Role: models.RoleUser, CreatedAt: now.Add(-48 * time.Hour), Parts: []models.Part{models.TextPart("old")}},
		{ID: "5", ChatID: "c", Role: models.RoleUser, CreatedAt: now, Parts: []models.Part{models.TextPart("other")}},
	}))

	count, err := s.CountUserMessagesSince(ctx, "u1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	deleted, err := s.DeleteAllChats(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	chats, _, err := s.ListChats(ctx, "u1", 10, "", "")
	require.NoError(t, err)
	assert.Empty(t, chats)
	msgs, err := s.GetMessages(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	remaining, err := s.GetMessages(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestStreamRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "u1", time.Now().UTC())
	require.NoError(t, s.CreateStream(ctx, "s1", "c1"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.CreateStream(ctx, "s2", "c1"))

	latest, err := s.LatestStreamID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s2", latest)

	removed, err := s.DeleteStreamsBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}

func TestDocumentVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.db.Exec(`INSERT INTO users (id, email, password_hash, type, created_at) VALUES ('u1', 'u1@example.com', '', 'regular', ?)`, time.Now().UTC()).Error)

	first := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.SaveDocument(ctx, &models.Document{ID: "d1", CreatedAt: first, Title: "Plan", Content: "v1", Kind: models.DocumentText, UserID: "u1"}))
	require.NoError(t, s.SaveDocument(ctx, &models.Document{ID: "d1", Title: "Plan", Content: "v2", Kind: models.DocumentText, UserID: "u1"}))

	doc, err := s.LatestDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Content)

	require.NoError(t, s.SaveSuggestions(ctx, []models.Suggestion{{
		ID: "s1", DocumentID: doc.ID, DocumentCreatedAt: doc.CreatedAt,
		OriginalText: "v2", SuggestedText: "version two", UserID: "u1", CreatedAt: time.Now().UTC(),
	}}))

	_, err = s.LatestDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
