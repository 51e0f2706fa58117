package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatbff/internal/models"
)

const (
	WebSearchHTTPTimeout = 10 * time.Second
	maxFetchBodySize     = 512 * 1024
)

// Emitter writes a frame onto the stream of the current turn.
type Emitter func(models.Frame)

type toolContextKey struct{}

// ToolContext is the per-turn state tools read from their context.
type ToolContext struct {
	Principal models.Principal
	ChatID    string
	Emit      Emitter
}

func WithToolContext(ctx context.Context, tc ToolContext) context.Context {
	return context.WithValue(ctx, toolContextKey{}, tc)
}

// ToolContextFrom returns the turn state. Emit is never nil.
func ToolContextFrom(ctx context.Context) ToolContext {
	tc, _ := ctx.Value(toolContextKey{}).(ToolContext)
	if tc.Emit == nil {
		tc.Emit = func(models.Frame) {}
	}
	return tc
}

// userLimiter hands out one token bucket per key.
type userLimiter struct {
	perMinute int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

func newUserLimiter(perMinute int) *userLimiter {
	return &userLimiter{perMinute: perMinute, limiters: make(map[string]*rate.Limiter)}
}

func (l *userLimiter) Allow(key string) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func fetchURL(ctx context.Context, client *http.Client, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "chatbff-tools/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodySize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ToolOutputJSON turns a tool result string into a JSON value for the stream.
// Non-JSON results are wrapped as a JSON string.
func ToolOutputJSON(result string) json.RawMessage {
	trimmed := strings.TrimSpace(result)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(result)
	return encoded
}
