package chat

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbff/internal/redis"
)

func TestLocalGuard(t *testing.T) {
	g := NewTurnGuard(nil, time.Minute, nil)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "chat-1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "chat-1")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	other, err := g.Acquire(ctx, "chat-2")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := g.Acquire(ctx, "chat-1")
	require.NoError(t, err)
	again()
}

func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	raw := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { raw.Close() })
	ctx := context.Background()
	require.NoError(t, raw.Ping(ctx).Err())

	g := NewTurnGuard(redis.Wrap(raw), time.Minute, nil)
	chatID := "guard-test-" + time.Now().Format("150405.000000")

	release, err := g.Acquire(ctx, chatID)
	require.NoError(t, err)
	_, err = g.Acquire(ctx, chatID)
	assert.ErrorIs(t, err, ErrTurnInProgress)

	release()
	exists, err := raw.Exists(ctx, turnLockPrefix+chatID).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
