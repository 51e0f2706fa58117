// Package chat runs one streamed model turn per POST /chat request.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"

	"chatbff/internal/apierror"
	"chatbff/internal/models"
	"chatbff/internal/resumable"
	"chatbff/internal/service/ai"
	"chatbff/internal/service/normalize"
	"chatbff/internal/store"
	"chatbff/internal/worker"
)

// State is the lifecycle position of a turn.
type State string

const (
	StateInit          State = "INIT"
	StateAuthorized    State = "AUTHORIZED"
	StateHistoryLoaded State = "HISTORY_LOADED"
	StateStreaming     State = "STREAMING"
	StateFinalizing    State = "FINALIZING"
	StateComplete      State = "COMPLETE"
	StateFailed        State = "FAILED"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	SaveChat(ctx context.Context, chat *models.Chat) error
	UpdateChatTitle(ctx context.Context, id, title string) error
	GetMessages(ctx context.Context, chatID string) ([]models.Message, error)
	SaveMessages(ctx context.Context, msgs []models.Message) error
	CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int64, error)
	CreateStream(ctx context.Context, streamID, chatID string) error
}

// TitleGenerator names a chat from its first message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, message models.Message) (string, error)
}

// Submitter queues background jobs.
type Submitter interface {
	Submit(job worker.Job) error
}

// Config tunes the orchestrator.
type Config struct {
	MaxSteps     int
	Entitlements map[models.UserType]int
	TitleWait    time.Duration
	SmoothDelay  time.Duration
	TurnTimeout  time.Duration
	// ModelIDs are the configured model ids; DefaultModel serves every other id.
	ModelIDs     []string
	DefaultModel string
}

// Deps are the orchestrator collaborators.
type Deps struct {
	Store      Store
	Normalizer *normalize.Normalizer
	Tools      *ai.Registry
	Models     ai.ModelProvider
	Titles     TitleGenerator
	Jobs       Submitter
	Streams    *resumable.Registry
	Guard      TurnGuard
	Logger     *slog.Logger
}

type Orchestrator struct {
	Deps
	cfg      Config
	modelIDs map[string]struct{}
}

func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Guard == nil {
		deps.Guard = &localGuard{held: make(map[string]struct{})}
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 5
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}
	if cfg.TitleWait <= 0 {
		cfg.TitleWait = 15 * time.Second
	}
	ids := make(map[string]struct{}, len(cfg.ModelIDs))
	for _, id := range cfg.ModelIDs {
		ids[id] = struct{}{}
	}
	return &Orchestrator{Deps: deps, cfg: cfg, modelIDs: ids}
}

// modelLabel maps a requested model id onto the bounded set used as a metric
// label.
func (o *Orchestrator) modelLabel(id string) string {
	if _, ok := o.modelIDs[id]; ok {
		return id
	}
	if o.cfg.DefaultModel != "" {
		return o.cfg.DefaultModel
	}
	return "other"
}

// Turn is a prepared request that is ready to stream.
type Turn struct {
	o         *Orchestrator
	req       Request
	principal models.Principal
	hints     ai.RequestHints

	state       State
	release     func()
	history     []models.Message
	toolset     *ai.Toolset
	chatModel   model.ToolCallingChatModel
	streamID    string
	assistantID string
	title       <-chan string
	logger      *slog.Logger
}

// State reports where the turn is in its lifecycle.
func (t *Turn) State() State {
	return t.state
}

// StreamID is the id registered for resumption; empty in incognito mode.
func (t *Turn) StreamID() string {
	return t.streamID
}

func (t *Turn) setState(s State) {
	t.logger.Debug("turn state", "from", t.state, "to", s)
	t.state = s
}

// Release frees the per-chat turn guard. It is safe to call more than once.
func (t *Turn) Release() {
	if t.release != nil {
		t.release()
	}
}

// Prepare runs every check and write that has to happen before the stream
// opens. Failures come back as client errors and leave nothing locked.
func (o *Orchestrator) Prepare(ctx context.Context, principal models.Principal, authenticated bool, req Request, hints ai.RequestHints) (*Turn, *apierror.Error) {
	t := &Turn{
		o:         o,
		req:       req,
		principal: principal,
		hints:     hints,
		state:     StateInit,
		logger:    o.Logger.With("chat_id", req.ID),
	}
	if !authenticated || principal.ID == "" {
		return nil, apierror.New("unauthorized:chat")
	}
	t.setState(StateAuthorized)

	if !principal.ViaBearer {
		if apiErr := o.checkQuota(ctx, principal); apiErr != nil {
			return nil, apiErr
		}
	}

	release, err := o.Guard.Acquire(ctx, req.ID)
	if errors.Is(err, ErrTurnInProgress) {
		return nil, apierror.New("conflict:chat")
	}
	if err != nil {
		return nil, apierror.Wrap("offline:chat", err)
	}
	t.release = release

	if apiErr := t.prepare(ctx); apiErr != nil {
		t.Release()
		return nil, apiErr
	}
	return t, nil
}

func (o *Orchestrator) checkQuota(ctx context.Context, principal models.Principal) *apierror.Error {
	limit, ok := o.cfg.Entitlements[principal.Type]
	if !ok {
		return nil
	}
	count, err := o.Store.CountUserMessagesSince(ctx, principal.ID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return apierror.Wrap("bad_request:database", err)
	}
	if count > int64(limit) {
		return apierror.New("rate_limit:chat")
	}
	return nil
}

func (t *Turn) prepare(ctx context.Context) *apierror.Error {
	o, req := t.o, t.req

	chat, err := o.Store.GetChat(ctx, req.ID)
	isNew := errors.Is(err, store.ErrNotFound)
	switch {
	case isNew:
	case err != nil:
		return apierror.Wrap("bad_request:database", err)
	default:
		if chat.UserID != t.principal.ID {
			return apierror.New("forbidden:chat")
		}
		history, err := o.Store.GetMessages(ctx, req.ID)
		if err != nil {
			return apierror.Wrap("bad_request:database", err)
		}
		t.history = history
	}

	principal := t.principal
	ts, err := o.Tools.Build(ctx, ai.Request{
		ModelID:       req.SelectedChatModel,
		SearchEnabled: req.SearchEnabled,
		MemoryEnabled: req.MemoryEnabled,
		Incognito:     req.IncognitoMode,
		Principal:     &principal,
		ChatID:        req.ID,
	})
	if err != nil {
		return apierror.FromUpstream(err)
	}
	t.toolset = ts

	chatModel, err := o.Models.ChatModel(ctx, req.SelectedChatModel, ts.ThinkingBudget)
	if err != nil {
		return apierror.FromUpstream(err)
	}
	if len(ts.Infos) > 0 {
		chatModel, err = chatModel.WithTools(ts.Infos)
		if err != nil {
			return apierror.FromUpstream(err)
		}
	}
	t.chatModel = chatModel

	// the chat row and its title job only exist once the turn can run
	if isNew && !req.IncognitoMode {
		if err := o.Store.SaveChat(ctx, &models.Chat{
			ID:         req.ID,
			UserID:     t.principal.ID,
			Title:      models.PlaceholderTitle,
			Visibility: req.SelectedVisibilityType,
		}); err != nil {
			return apierror.Wrap("bad_request:database", err)
		}
		t.title = o.startTitle(req.ID, req.Message)
	}
	t.setState(StateHistoryLoaded)

	t.history = o.Normalizer.Normalize(ctx, t.history, req.Message)

	if !req.IncognitoMode {
		msg := req.Message
		msg.ChatID = req.ID
		msg.Attachments = nil
		msg.CreatedAt = time.Now().UTC()
		if err := o.Store.SaveMessages(ctx, []models.Message{msg}); err != nil {
			return apierror.Wrap("bad_request:database", err)
		}
		t.streamID = uuid.NewString()
		if err := o.Store.CreateStream(ctx, t.streamID, req.ID); err != nil {
			return apierror.Wrap("bad_request:database", err)
		}
	}
	t.assistantID = uuid.NewString()
	return nil
}

// userText is the plain text of the new message, used for memory lookups.
func (t *Turn) userText() string {
	return strings.TrimSpace(t.req.Message.TextContent())
}

func (t *Turn) systemPrompt(ctx context.Context) string {
	prompt := ai.SystemPrompt(t.req.SelectedChatModel, t.hints)
	if !t.toolset.Memory {
		return prompt
	}
	if memories := t.o.Tools.MemoryContext(ctx, t.principal.ID, t.userText()); memories != "" {
		prompt = fmt.Sprintf("%s\n\n%s", prompt, memories)
	}
	return prompt
}
