package worker

import (
	"context"
	"log/slog"
	"time"

	"chatbff/internal/metrics"
)

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			w.pool.Release(w.jobChannel)
			select {
			case job := <-w.jobChannel:
				if job.stop {
					w.pool.retire(w.jobChannel)
					return
				}
				w.run(job)
			case <-w.pool.done:
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) run(job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.BackgroundJobs.WithLabelValues(job.Kind, "panic").Inc()
			slog.Error("background job panicked", "kind", job.Kind, "key", job.Key, "panic", r)
		}
	}()
	ctx := w.pool.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	job.Run(ctx)
	metrics.BackgroundJobs.WithLabelValues(job.Kind, "done").Inc()
	debugLog("job finished", "kind", job.Kind, "key", job.Key, "took", time.Since(start))
}
