// Package memory talks to a supermemory-compatible long-term memory service.
// Every call is scoped by a container tag, which is the user id.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatbff/internal/config"
)

const (
	defaultTimeout = 10 * time.Second
	searchLimit    = 5
)

var ErrNotConfigured = errors.New("memory backend not configured")

// Client is a small HTTP client for the memory API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns nil when no API key is configured; a nil *Client reports
// Enabled() == false.
func NewClient(cfg config.MemoryConfig, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Memory is one retrieved memory.
type Memory struct {
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchRequest struct {
	Query         string   `json:"q"`
	ContainerTags []string `json:"containerTags"`
	Limit         int      `json:"limit"`
}

type searchResponse struct {
	Results []struct {
		DocumentID string  `json:"documentId"`
		Title      string  `json:"title"`
		Score      float64 `json:"score"`
		Chunks     []struct {
			Content    string `json:"content"`
			IsRelevant bool   `json:"isRelevant"`
		} `json:"chunks"`
	} `json:"results"`
}

// Search returns memories of userID relevant to query.
func (c *Client) Search(ctx context.Context, userID, query string) ([]Memory, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	var resp searchResponse
	err := c.post(ctx, "/v3/search", searchRequest{
		Query:         query,
		ContainerTags: []string{userID},
		Limit:         searchLimit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]Memory, 0, len(resp.Results))
	for _, r := range resp.Results {
		var b strings.Builder
		for _, chunk := range r.Chunks {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(chunk.Content)
		}
		out = append(out, Memory{ID: r.DocumentID, Title: r.Title, Content: b.String(), Score: r.Score})
	}
	return out, nil
}

type addRequest struct {
	Content       string            `json:"content"`
	ContainerTags []string          `json:"containerTags"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type addResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Add stores content for userID. conversationID may be empty.
func (c *Client) Add(ctx context.Context, userID, content, conversationID string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	req := addRequest{Content: content, ContainerTags: []string{userID}}
	if conversationID != "" {
		req.Metadata = map[string]string{"conversationId": conversationID}
	}
	var resp addResponse
	if err := c.post(ctx, "/v3/documents", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode memory request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("memory request %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode memory response: %w", err)
	}
	return nil
}

// FormatContext renders memories as a system prompt section. It returns ""
// when there is nothing to add.
func FormatContext(memories []Memory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant memories about the user:\n")
	for _, m := range memories {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
