package resumable

import (
	"context"
	"log/slog"
)

const writerBuffer = 256

type frameLog interface {
	Append(ctx context.Context, streamID string, frame []byte) error
	Finish(ctx context.Context, streamID string) error
}

// Writer records the frames of one stream in the background so that the live
// response never waits on redis. Frames keep their order.
type Writer struct {
	log      frameLog
	streamID string
	ctx      context.Context
	logger   *slog.Logger
	frames   chan []byte
	done     chan struct{}
}

// NewWriter starts a background writer for streamID. ctx should outlive the
// request so the tail of the stream is still recorded after a disconnect.
func (s *Streams) NewWriter(ctx context.Context, streamID string, logger *slog.Logger) *Writer {
	return newWriter(ctx, s, streamID, logger)
}

func newWriter(ctx context.Context, log frameLog, streamID string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		log:      log,
		streamID: streamID,
		ctx:      ctx,
		logger:   logger,
		frames:   make(chan []byte, writerBuffer),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Write queues one encoded frame. It blocks only while the buffer is full.
func (w *Writer) Write(frame []byte) {
	w.frames <- frame
}

// Close flushes the queued frames, writes the terminal marker and waits for
// both to land.
func (w *Writer) Close() {
	close(w.frames)
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	failed := false
	for frame := range w.frames {
		if failed {
			continue
		}
		if err := w.log.Append(w.ctx, w.streamID, frame); err != nil {
			// later frames would leave a gap in the replay
			w.logger.Warn("append resumable frame failed", "stream_id", w.streamID, "error", err)
			failed = true
		}
	}
	if err := w.log.Finish(w.ctx, w.streamID); err != nil {
		w.logger.Warn("finish resumable stream failed", "stream_id", w.streamID, "error", err)
	}
}
