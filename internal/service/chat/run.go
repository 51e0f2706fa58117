package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"chatbff/internal/metrics"
	"chatbff/internal/models"
	"chatbff/internal/resumable"
	"chatbff/internal/service/ai"
	"chatbff/internal/service/normalize"
)

// ErrorText is the only error detail sent once a stream is open.
const ErrorText = "Oops, an error occurred!"

const persistTimeout = 10 * time.Second

// Sink receives the frames of a turn in order.
type Sink interface {
	Write(frame models.Frame) error
}

// Run streams the turn into sink and returns once every frame is written.
// Model output, tool notifications and the title update share one channel.
func (t *Turn) Run(ctx context.Context, sink Sink) {
	defer t.Release()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()
	started := time.Now()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, t.o.cfg.TurnTimeout)
	defer cancel()
	t.setState(StateStreaming)

	frames := make(chan models.Frame, 64)
	var producers sync.WaitGroup
	producers.Add(1)
	go func() {
		defer producers.Done()
		t.generate(parent, ctx, frames)
	}()
	if t.title != nil {
		producers.Add(1)
		go func() {
			defer producers.Done()
			t.awaitTitle(ctx, frames)
		}()
	}
	go func() {
		producers.Wait()
		close(frames)
	}()

	var record *resumable.Writer
	if streams := t.o.Streams.Get(); streams != nil && t.streamID != "" {
		record = streams.NewWriter(context.WithoutCancel(ctx), t.streamID, t.logger)
	}
	sinkOK := true
	for f := range frames {
		if sinkOK {
			if err := sink.Write(f); err != nil {
				t.logger.Debug("stream sink closed", "error", err)
				sinkOK = false
			}
		}
		if record != nil {
			if payload, err := json.Marshal(f); err == nil {
				record.Write(payload)
			}
		}
	}
	if record != nil {
		record.Close()
	}

	outcome := "complete"
	if t.state == StateFailed {
		outcome = "failed"
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	metrics.TurnDuration.WithLabelValues(t.o.modelLabel(t.req.SelectedChatModel)).Observe(time.Since(started).Seconds())
}

func (t *Turn) awaitTitle(ctx context.Context, frames chan<- models.Frame) {
	timer := time.NewTimer(t.o.cfg.TitleWait)
	defer timer.Stop()
	select {
	case title, ok := <-t.title:
		if ok {
			frames <- models.DataFrame("chat-title", title, false)
		}
	case <-timer.C:
		t.logger.Info("title not ready before stream close")
	case <-ctx.Done():
	}
}

// output accumulates the assistant message of the turn.
type output struct {
	mu    sync.Mutex
	parts []models.Part
}

func (o *output) add(p models.Part) {
	o.mu.Lock()
	o.parts = append(o.parts, p)
	o.mu.Unlock()
}

func (o *output) snapshot() []models.Part {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Part, len(o.parts))
	copy(out, o.parts)
	return out
}

// generate runs the model loop. Only a cancelled caller context counts as a
// disconnect; the turn deadline and every other failure end with an error
// frame.
func (t *Turn) generate(parent, ctx context.Context, frames chan<- models.Frame) {
	emit := func(f models.Frame) { frames <- f }
	out := &output{}

	err := t.loop(ctx, emit, out)
	switch {
	case err == nil:
		t.setState(StateFinalizing)
		emit(models.Frame{Type: models.FrameFinish})
		t.finalize(ctx, out.snapshot())
		t.setState(StateComplete)
	case parent.Err() != nil:
		t.logger.Info("turn cancelled", "error", err)
		t.setState(StateFinalizing)
		t.finalize(ctx, out.snapshot())
		t.setState(StateFailed)
	default:
		t.logger.Error("turn failed", "error", err)
		emit(models.Frame{Type: models.FrameError, ErrorText: ErrorText})
		t.setState(StateFinalizing)
		t.finalize(ctx, out.snapshot())
		t.setState(StateFailed)
	}
}

func (t *Turn) loop(ctx context.Context, emit ai.Emitter, out *output) error {
	emit(models.Frame{Type: models.FrameStart, MessageID: t.assistantID})

	messages := []*schema.Message{schema.SystemMessage(t.systemPrompt(ctx))}
	messages = append(messages, normalize.ToModelMessages(ctx, t.history)...)

	toolCtx := ai.WithToolContext(ctx, ai.ToolContext{
		Principal: t.principal,
		ChatID:    t.req.ID,
		Emit:      emit,
	})

	for step := 0; step < t.o.cfg.MaxSteps; step++ {
		emit(models.Frame{Type: models.FrameStartStep})
		msg, err := t.step(ctx, messages, emit, out)
		if err != nil {
			return err
		}
		if len(msg.ToolCalls) == 0 {
			emit(models.Frame{Type: models.FrameFinishStep})
			return nil
		}

		messages = append(messages, &schema.Message{
			Role:      schema.Assistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
		for _, call := range msg.ToolCalls {
			messages = append(messages, t.invoke(toolCtx, call, emit, out))
		}
		emit(models.Frame{Type: models.FrameFinishStep})
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// step streams one model call. Text and reasoning are forwarded as they
// arrive; tool calls are returned once the call completes.
func (t *Turn) step(ctx context.Context, messages []*schema.Message, emit ai.Emitter, out *output) (*schema.Message, error) {
	reader, err := t.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("stream model: %w", err)
	}
	defer reader.Close()

	text := newBlock(models.FrameTextStart, models.FrameTextDelta, models.FrameTextEnd, emit)
	reasoning := newBlock(models.FrameReasoningStart, models.FrameReasoningDelta, models.FrameReasoningEnd, emit)
	var smoother *wordSmoother
	if t.toolset.Smooth {
		smoother = &wordSmoother{delay: t.o.cfg.SmoothDelay, emit: text.delta}
	}
	finish := func() {
		if smoother != nil {
			smoother.flush()
		}
		if r := reasoning.end(); r != "" {
			out.add(models.Part{Type: models.PartReasoning, Text: r})
		}
		if s := text.end(); s != "" {
			out.add(models.TextPart(s))
		}
	}

	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			finish()
			return nil, fmt.Errorf("receive model chunk: %w", err)
		}
		chunks = append(chunks, chunk)
		if chunk.ReasoningContent != "" {
			reasoning.delta(chunk.ReasoningContent)
		}
		if chunk.Content != "" {
			if smoother != nil {
				smoother.push(ctx, chunk.Content)
			} else {
				text.delta(chunk.Content)
			}
		}
	}
	finish()

	if len(chunks) == 0 {
		return &schema.Message{Role: schema.Assistant}, nil
	}
	msg, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("concat model chunks: %w", err)
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = uuid.NewString()
		}
	}
	return msg, nil
}

// invoke runs one tool call. Failures are reported to the model and the
// client as a failed tool result.
func (t *Turn) invoke(ctx context.Context, call schema.ToolCall, emit ai.Emitter, out *output) *schema.Message {
	name := call.Function.Name
	input := ai.ToolOutputJSON(call.Function.Arguments)
	emit(models.Frame{
		Type:       models.FrameToolInputAvailable,
		ToolCallID: call.ID,
		ToolName:   name,
		Input:      input,
	})

	invocation := &models.ToolInvocation{ToolName: name, ToolCallID: call.ID, Input: input}
	label := name
	if _, ok := t.toolset.Tools[name]; !ok {
		label = "unknown"
	}
	result, err := t.runTool(ctx, name, call.Function.Arguments)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(label, "error").Inc()
		t.logger.Warn("tool failed", "tool", name, "error", err)
		invocation.State = models.ToolStateOutputError
		invocation.ErrorText = err.Error()
		emit(models.Frame{Type: models.FrameToolOutputError, ToolCallID: call.ID, ErrorText: err.Error()})
		out.add(models.Part{Type: models.PartToolInvocation, Tool: invocation})

		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return &schema.Message{Role: schema.Tool, Content: string(payload), ToolCallID: call.ID, ToolName: name}
	}

	metrics.ToolCallsTotal.WithLabelValues(label, "ok").Inc()
	output := ai.ToolOutputJSON(result)
	invocation.State = models.ToolStateOutputAvailable
	invocation.Output = output
	emit(models.Frame{Type: models.FrameToolOutputAvailable, ToolCallID: call.ID, Output: output})
	out.add(models.Part{Type: models.PartToolInvocation, Tool: invocation})
	return &schema.Message{Role: schema.Tool, Content: result, ToolCallID: call.ID, ToolName: name}
}

func (t *Turn) runTool(ctx context.Context, name, arguments string) (result string, err error) {
	tl, ok := t.toolset.Tools[name]
	if !ok {
		return "", fmt.Errorf("tool %s is not available", name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", name, r)
		}
	}()
	if arguments == "" {
		arguments = "{}"
	}
	return tl.InvokableRun(ctx, arguments)
}

// finalize persists the assistant output and schedules the memory write.
func (t *Turn) finalize(ctx context.Context, parts []models.Part) {
	if t.req.IncognitoMode || len(parts) == 0 {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	msg := models.Message{
		ID:        t.assistantID,
		ChatID:    t.req.ID,
		Role:      models.RoleAssistant,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.o.Store.SaveMessages(persistCtx, []models.Message{msg}); err != nil {
		t.logger.Error("persist assistant message failed", "error", err)
		return
	}
	if t.toolset.Memory {
		t.o.saveMemory(t.principal.ID, t.req.ID, t.userText(), msg.TextContent())
	}
}

// block tracks one text or reasoning run within a step.
type block struct {
	startType, deltaType, endType string
	id                            string
	emit                          ai.Emitter
	open                          bool
	content                       []byte
}

func newBlock(startType, deltaType, endType string, emit ai.Emitter) *block {
	return &block{startType: startType, deltaType: deltaType, endType: endType, emit: emit}
}

func (b *block) delta(s string) {
	if s == "" {
		return
	}
	if !b.open {
		b.id = uuid.NewString()
		b.open = true
		b.emit(models.Frame{Type: b.startType, ID: b.id})
	}
	b.content = append(b.content, s...)
	b.emit(models.Frame{Type: b.deltaType, ID: b.id, Delta: s})
}

// end closes the block and returns everything it carried.
func (b *block) end() string {
	if !b.open {
		return ""
	}
	b.emit(models.Frame{Type: b.endType, ID: b.id})
	b.open = false
	s := string(b.content)
	b.content = nil
	return s
}
