package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatbff/internal/redis"
)

const turnLockPrefix = "chatbff:turn:"

// ErrTurnInProgress is returned while another turn holds the chat.
var ErrTurnInProgress = errors.New("turn already in progress")

// TurnGuard admits at most one in-flight turn per chat.
type TurnGuard interface {
	Acquire(ctx context.Context, chatID string) (release func(), err error)
}

// NewTurnGuard locks through redis when a client is available and in process
// otherwise.
func NewTurnGuard(cache *redis.Client, ttl time.Duration, logger *slog.Logger) TurnGuard {
	local := &localGuard{held: make(map[string]struct{})}
	if cache == nil || cache.Raw() == nil {
		return local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisGuard{cache: cache, ttl: ttl, fallback: local, logger: logger}
}

type localGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func (g *localGuard) Acquire(ctx context.Context, chatID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[chatID]; busy {
		return nil, ErrTurnInProgress
	}
	g.held[chatID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, chatID)
			g.mu.Unlock()
		})
	}, nil
}

type redisGuard struct {
	cache    *redis.Client
	ttl      time.Duration
	fallback *localGuard
	logger   *slog.Logger
}

func (g *redisGuard) Acquire(ctx context.Context, chatID string) (func(), error) {
	key := turnLockPrefix + chatID
	token := uuid.NewString()
	ok, err := g.cache.SetNX(ctx, key, token, g.ttl)
	if err != nil {
		g.logger.Warn("turn lock unavailable, using in-process guard", "chat_id", chatID, "error", err)
		return g.fallback.Acquire(ctx, chatID)
	}
	if !ok {
		return nil, ErrTurnInProgress
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := g.cache.CompareAndDelete(ctx, key, token); err != nil {
				g.logger.Warn("release turn lock failed", "chat_id", chatID, "error", err)
			}
		})
	}, nil
}
