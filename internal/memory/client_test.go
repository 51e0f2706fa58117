package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbff/internal/config"
)

func TestClientScopesByUser(t *testing.T) {
	var searched, added map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer mem-key", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/v3/search":
			searched = body
			_, _ = w.Write([]byte(`{"results":[{"documentId":"d1","title":"pets","score":0.9,"chunks":[{"content":"has a cat"},{"content":"named Tom"}]}]}`))
		case "/v3/documents":
			added = body
			_, _ = w.Write([]byte(`{"id":"d2","status":"queued"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(config.MemoryConfig{BaseURL: srv.URL + "/", APIKey: "mem-key"}, nil)
	require.True(t, client.Enabled())

	memories, err := client.Search(context.Background(), "user-1", "pets")
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "has a cat\nnamed Tom", memories[0].Content)
	assert.Equal(t, []any{"user-1"}, searched["containerTags"])
	assert.Equal(t, "pets", searched["q"])

	id, err := client.Add(context.Background(), "user-1", "likes tea", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "d2", id)
	assert.Equal(t, []any{"user-1"}, added["containerTags"])

	assert.Equal(t, "Relevant memories about the user:\n- has a cat\nnamed Tom", FormatContext(memories))
}

func TestClientDisabledWithoutKey(t *testing.T) {
	client := NewClient(config.MemoryConfig{BaseURL: "http://localhost"}, nil)
	assert.False(t, client.Enabled())
	_, err := client.Search(context.Background(), "u", "q")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "", FormatContext(nil))
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(config.MemoryConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	_, err := client.Add(context.Background(), "u", "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
