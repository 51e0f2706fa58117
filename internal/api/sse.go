package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"chatbff/internal/models"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// sseWriter writes UI message stream frames as server-sent events. Headers
// are sent with the first frame so handlers can still answer with a plain
// status when nothing was streamed.
type sseWriter struct {
	mu      sync.Mutex
	c       *gin.Context
	flusher http.Flusher
	started bool
}

func newSSEWriter(c *gin.Context) (*sseWriter, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseWriter{c: c, flusher: flusher}, nil
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	header := w.c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("X-Vercel-AI-UI-Message-Stream", "v1")
	w.c.Status(http.StatusOK)
	w.started = true
}

// Write implements chat.Sink.
func (w *sseWriter) Write(frame models.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return w.WriteRaw(data)
}

// WriteRaw sends an already encoded frame.
func (w *sseWriter) WriteRaw(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start()
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Close writes the terminal marker.
func (w *sseWriter) Close() error {
	return w.WriteRaw([]byte("[DONE]"))
}

func (w *sseWriter) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}
