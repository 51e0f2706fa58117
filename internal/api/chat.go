package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatbff/internal/apierror"
	"chatbff/internal/metrics"
	"chatbff/internal/models"
	"chatbff/internal/resumable"
	"chatbff/internal/service/ai"
	"chatbff/internal/service/chat"
	"chatbff/internal/store"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	chatModelCookie     = "chat-model"
)

func (h *Handler) postChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.New("bad_request:api", "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		apierror.Respond(c, apierror.New("bad_request:api", err.Error()))
		return
	}

	principal, authenticated := principalOf(c)
	turn, apiErr := h.chats.Prepare(c.Request.Context(), principal, authenticated, req, ai.HintsFromRequest(c.Request))
	if apiErr != nil {
		metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		apierror.Respond(c, apiErr)
		return
	}

	w, err := newSSEWriter(c)
	if err != nil {
		turn.Release()
		apierror.Respond(c, apierror.Wrap("offline:stream", err))
		return
	}
	turn.Run(c.Request.Context(), w)
	_ = w.Close()
}

// getChat returns a chat with its transcript. Public chats are readable by
// any signed-in user.
func (h *Handler) getChat(c *gin.Context) {
	principal, ok := requirePrincipal(c, "chat")
	if !ok {
		return
	}
	ch, apiErr := h.readableChat(c, principal)
	if apiErr != nil {
		apierror.Respond(c, apiErr)
		return
	}
	messages, err := h.store.GetMessages(c.Request.Context(), ch.ID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	chatModel := h.defaultModel
	if v, err := c.Cookie(chatModelCookie); err == nil && v != "" {
		chatModel = v
	}
	c.JSON(http.StatusOK, gin.H{
		"chat":       ch,
		"messages":   messages,
		"chatModel":  chatModel,
		"isReadonly": principal.ID != ch.UserID,
		"session": gin.H{"user": gin.H{
			"id":    principal.ID,
			"email": principal.Email,
			"name":  principal.Name,
		}},
	})
}

func (h *Handler) readableChat(c *gin.Context, principal models.Principal) (*models.Chat, *apierror.Error) {
	ch, err := h.store.GetChat(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierror.New("not_found:chat")
	}
	if err != nil {
		return nil, apierror.Wrap("bad_request:database", err)
	}
	if ch.Visibility == models.VisibilityPrivate && ch.UserID != principal.ID {
		return nil, apierror.New("forbidden:chat")
	}
	return ch, nil
}

// resumeStream replays the latest stream of the chat and follows it until it
// ends. It answers 204 when there is nothing to resume.
func (h *Handler) resumeStream(c *gin.Context) {
	principal, ok := requirePrincipal(c, "chat")
	if !ok {
		return
	}
	ch, apiErr := h.readableChat(c, principal)
	if apiErr != nil {
		apierror.Respond(c, apiErr)
		return
	}
	streams := h.streams.Get()
	if streams == nil {
		c.Status(http.StatusNoContent)
		return
	}
	streamID, err := h.store.LatestStreamID(c.Request.Context(), ch.ID)
	if errors.Is(err, store.ErrNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}

	w, err := newSSEWriter(c)
	if err != nil {
		apierror.Respond(c, apierror.Wrap("offline:stream", err))
		return
	}
	err = streams.Replay(c.Request.Context(), streamID, w.WriteRaw)
	switch {
	case errors.Is(err, resumable.ErrStreamNotFound) && !w.Started():
		c.Status(http.StatusNoContent)
		return
	case err != nil && !w.Started():
		apierror.Respond(c, apierror.Wrap("offline:stream", err))
		return
	case err != nil:
		slog.Warn("resume stream interrupted", "chat_id", ch.ID, "stream_id", streamID, "error", err)
	}
	_ = w.Close()
}

// deleteChat is limited to cookie sessions.
func (h *Handler) deleteChat(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok || principal.ViaBearer {
		apierror.Respond(c, apierror.New("unauthorized:chat"))
		return
	}
	id := c.Query("id")
	if id == "" {
		apierror.Respond(c, apierror.New("bad_request:api", "id is required"))
		return
	}
	ch, err := h.store.GetChat(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apierror.Respond(c, apierror.New("not_found:chat"))
		return
	}
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}
	if ch.UserID != principal.ID {
		apierror.Respond(c, apierror.New("forbidden:chat"))
		return
	}
	deleted, err := h.store.DeleteChat(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}
	c.JSON(http.StatusOK, deleted)
}

func (h *Handler) getHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			apierror.Respond(c, apierror.New("bad_request:api", "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	startingAfter, endingBefore := c.Query("starting_after"), c.Query("ending_before")
	if startingAfter != "" && endingBefore != "" {
		apierror.Respond(c, apierror.New("bad_request:api", "Only one of starting_after or ending_before can be provided."))
		return
	}
	principal, ok := requirePrincipal(c, "chat")
	if !ok {
		return
	}

	chats, hasMore, err := h.store.ListChats(c.Request.Context(), principal.ID, limit, startingAfter, endingBefore)
	if errors.Is(err, store.ErrNotFound) {
		apierror.Respond(c, apierror.New("not_found:chat", "cursor chat not found"))
		return
	}
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats, "hasMore": hasMore})
}

func (h *Handler) deleteHistory(c *gin.Context) {
	principal, ok := requirePrincipal(c, "chat")
	if !ok {
		return
	}
	n, err := h.store.DeleteAllChats(c.Request.Context(), principal.ID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedCount": n})
}
