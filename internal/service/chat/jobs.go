package chat

import (
	"context"
	"fmt"
	"time"

	"chatbff/internal/metrics"
	"chatbff/internal/models"
	"chatbff/internal/worker"
)

const (
	jobKindTitle  = "title"
	jobKindMemory = "memory"

	titleTimeout  = 30 * time.Second
	memoryTimeout = 20 * time.Second
)

// startTitle generates the chat title in the background. The returned channel
// yields the title once it is stored and is closed either way.
func (o *Orchestrator) startTitle(chatID string, message models.Message) <-chan string {
	done := make(chan string, 1)
	run := func(ctx context.Context) {
		defer close(done)
		ctx, cancel := context.WithTimeout(ctx, titleTimeout)
		defer cancel()

		title, err := o.Titles.GenerateTitle(ctx, message)
		if err != nil {
			metrics.BackgroundJobs.WithLabelValues(jobKindTitle, "error").Inc()
			o.Logger.Warn("generate title failed", "chat_id", chatID, "error", err)
			return
		}
		if err := o.Store.UpdateChatTitle(ctx, chatID, title); err != nil {
			metrics.BackgroundJobs.WithLabelValues(jobKindTitle, "error").Inc()
			o.Logger.Warn("store title failed", "chat_id", chatID, "error", err)
			return
		}
		done <- title
	}
	o.submit(worker.Job{Key: chatID, Kind: jobKindTitle, Run: run})
	return done
}

// saveMemory stores the exchange with the memory backend after the turn.
func (o *Orchestrator) saveMemory(userID, chatID, question, answer string) {
	if question == "" || answer == "" {
		return
	}
	content := fmt.Sprintf("User: %s\nAssistant: %s", question, answer)
	o.submit(worker.Job{Key: chatID, Kind: jobKindMemory, Run: func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, memoryTimeout)
		defer cancel()
		if err := o.Tools.SaveMemory(ctx, userID, chatID, content); err != nil {
			metrics.BackgroundJobs.WithLabelValues(jobKindMemory, "error").Inc()
			o.Logger.Warn("save memory failed", "chat_id", chatID, "error", err)
		}
	}})
}

// submit hands the job to the dispatcher, running it on its own goroutine
// when the dispatcher is missing or full.
func (o *Orchestrator) submit(job worker.Job) {
	if o.Jobs != nil {
		err := o.Jobs.Submit(job)
		if err == nil {
			return
		}
		o.Logger.Warn("background queue rejected job", "kind", job.Kind, "key", job.Key, "error", err)
	}
	metrics.BackgroundJobs.WithLabelValues(job.Kind, "inline").Inc()
	go job.Run(context.Background())
}
