package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbff/internal/models"
)

type countingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *countingPruner) DeleteStreamsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 1, nil
}

func (p *countingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestStreamCleanerPrunesOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &countingPruner{}

	StartStreamCleaner(ctx, p, 10*time.Millisecond, time.Hour, nil)
	require.Eventually(t, func() bool { return p.calls() >= 2 }, 2*time.Second, 5*time.Millisecond)

	p.mu.Lock()
	cutoff := p.cutoffs[0]
	p.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(-time.Hour), cutoff, time.Minute)
}

func TestPruneStreamsAgainstStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveChat(ctx, &models.Chat{ID: "c1", UserID: "alice", Title: "t", Visibility: models.VisibilityPrivate}))
	require.NoError(t, h.store.CreateStream(ctx, "s1", "c1"))

	pruneStreams(ctx, h.store, -time.Minute, h.orch.Logger)

	_, err := h.store.LatestStreamID(ctx, "c1")
	assert.Error(t, err)
}
