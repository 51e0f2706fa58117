// Package resumable keeps a replayable log of every frame written to a chat
// stream so that a client can reattach after a disconnect.
package resumable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatbff/internal/redis"
)

const (
	keyPrefix    = "chatbff:stream:"
	fieldFrame   = "frame"
	fieldDone    = "done"
	readBlock    = 5 * time.Second
	maxIdleReads = 12
)

var (
	// ErrDisabled is returned when no redis backend is reachable.
	ErrDisabled = errors.New("resumable streams disabled")
	// ErrStreamNotFound is returned for unknown or expired streams.
	ErrStreamNotFound = errors.New("stream not found")
)

// Connector opens the redis backend.
type Connector func() (*redis.Client, error)

// Registry lazily connects to redis on first use. A failed connection disables
// resumption for the lifetime of the process.
type Registry struct {
	connect   Connector
	retention time.Duration
	logger    *slog.Logger

	once    sync.Once
	streams *Streams
}

func NewRegistry(connect Connector, retention time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{connect: connect, retention: retention, logger: logger}
}

// Get returns the stream handle, or nil when resumption is unavailable.
func (r *Registry) Get() *Streams {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		if r.connect == nil {
			r.logger.Info("resumable streams are disabled due to missing REDIS_URL")
			return
		}
		client, err := r.connect()
		if err != nil || client == nil {
			r.logger.Warn("resumable streams are disabled", "error", err)
			return
		}
		r.streams = &Streams{client: client, retention: r.retention}
	})
	return r.streams
}

// Close releases the redis connection if Get opened one.
func (r *Registry) Close() error {
	if r == nil || r.streams == nil {
		return nil
	}
	return r.streams.client.Close()
}

// Streams appends to and replays frame logs.
type Streams struct {
	client    *redis.Client
	retention time.Duration
}

func streamKey(streamID string) string {
	return keyPrefix + streamID
}

// Append records one encoded frame.
func (s *Streams) Append(ctx context.Context, streamID string, frame []byte) error {
	if s == nil {
		return ErrDisabled
	}
	return s.client.XAppend(ctx, streamKey(streamID), map[string]interface{}{fieldFrame: frame}, s.retention)
}

// Finish writes the terminal marker.
func (s *Streams) Finish(ctx context.Context, streamID string) error {
	if s == nil {
		return ErrDisabled
	}
	return s.client.XAppend(ctx, streamKey(streamID), map[string]interface{}{fieldDone: "1"}, s.retention)
}

// Replay calls fn for every recorded frame, following the log until the
// terminal marker, ctx cancellation or a minute without new frames.
func (s *Streams) Replay(ctx context.Context, streamID string, fn func(frame []byte) error) error {
	if s == nil {
		return ErrDisabled
	}
	key := streamKey(streamID)
	ok, err := s.client.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check stream: %w", err)
	}
	if !ok {
		return ErrStreamNotFound
	}

	lastID := "0"
	idle := 0
	for idle < maxIdleReads {
		entries, err := s.client.XReadAfter(ctx, key, lastID, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if len(entries) == 0 {
			idle++
			continue
		}
		idle = 0
		for _, e := range entries {
			lastID = e.ID
			if _, done := e.Values[fieldDone]; done {
				return nil
			}
			frame, _ := e.Values[fieldFrame].(string)
			if err := fn([]byte(frame)); err != nil {
				return err
			}
		}
	}
	return nil
}
