package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatbff/internal/apierror"
	"chatbff/internal/auth"
	"chatbff/internal/blob"
	"chatbff/internal/models"
	"chatbff/internal/resumable"
	"chatbff/internal/service/ai"
	"chatbff/internal/service/chat"
)

// ChatStore is the read and delete side of the conversation store.
type ChatStore interface {
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	GetMessages(ctx context.Context, chatID string) ([]models.Message, error)
	DeleteChat(ctx context.Context, id string) (*models.Chat, error)
	ListChats(ctx context.Context, userID string, limit int, startingAfter, endingBefore string) ([]models.Chat, bool, error)
	DeleteAllChats(ctx context.Context, userID string) (int64, error)
	LatestStreamID(ctx context.Context, chatID string) (string, error)
}

// Options carries the collaborators of the HTTP layer.
type Options struct {
	Auth           *auth.Service
	Signer         *auth.TokenSigner
	Resolver       *auth.Resolver
	Store          ChatStore
	Chats          *chat.Orchestrator
	Streams        *resumable.Registry
	Blobs          *blob.LocalStore
	Transcriber    ai.Transcriber
	DefaultModel   string
	MaxUploadBytes int64
}

// Handler wires HTTP routes to the chat services.
type Handler struct {
	auth        *auth.Service
	signer      *auth.TokenSigner
	resolver    *auth.Resolver
	store       ChatStore
	chats       *chat.Orchestrator
	streams     *resumable.Registry
	blobs       *blob.LocalStore
	transcriber ai.Transcriber

	defaultModel   string
	maxUploadBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = maxUploadBytes
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = "chat-model"
	}
	return &Handler{
		auth:           opts.Auth,
		signer:         opts.Signer,
		resolver:       opts.Resolver,
		store:          opts.Store,
		chats:          opts.Chats,
		streams:        opts.Streams,
		blobs:          opts.Blobs,
		transcriber:    opts.Transcriber,
		defaultModel:   opts.DefaultModel,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.blobs != nil {
		router.Static("/blobs", h.blobs.Dir())
	}

	api := router.Group("")
	api.Use(auth.ProxyHeaders(auth.BearerStrategy{Signer: h.signer}), h.resolver.Middleware(), h.auth.CSRFMiddleware())

	api.POST("/auth/register", h.registerUser)
	api.POST("/auth/login", h.loginUser)
	api.POST("/auth/guest", h.guestUser)
	api.POST("/auth/token", h.issueBearer)
	api.POST("/auth/logout", h.logoutUser)

	api.POST("/chat", h.postChat)
	api.GET("/chat/:id", h.getChat)
	api.GET("/chat/:id/stream", h.resumeStream)
	api.DELETE("/chat", h.deleteChat)

	api.GET("/history", h.getHistory)
	api.DELETE("/history", h.deleteHistory)

	api.POST("/files/upload", h.filesUpload)
	api.POST("/stt", h.speechToText)
}

func principalOf(c *gin.Context) (models.Principal, bool) {
	p, ok := auth.PrincipalFromContext(c)
	return p, ok && p.ID != ""
}

// requirePrincipal answers unauthorized:<surface> when the caller is anonymous.
func requirePrincipal(c *gin.Context, surface string) (models.Principal, bool) {
	p, ok := principalOf(c)
	if !ok {
		apierror.Respond(c, apierror.New("unauthorized:"+surface))
		return models.Principal{}, false
	}
	return p, true
}

// User create&login interface
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.New("bad_request:api", "invalid request body"))
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			apierror.Respond(c, apierror.New("conflict:auth", err.Error()))
			return
		}
		apierror.Respond(c, apierror.New("bad_request:auth", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.New("bad_request:api", "invalid request body"))
		return
	}
	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		apierror.Respond(c, apierror.New("unauthorized:auth", err.Error()))
		return
	}
	h.startSession(c, user, http.StatusOK)
}

func (h *Handler) guestUser(c *gin.Context) {
	user, err := h.auth.CreateGuest(c.Request.Context())
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}
	h.startSession(c, user, http.StatusCreated)
}

func (h *Handler) startSession(c *gin.Context, user *models.User, status int) {
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap("bad_request:database", err))
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		apierror.Respond(c, apierror.Wrap("offline:auth", err))
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(status, gin.H{"user": user, "csrfToken": csrfToken})
}

// issueBearer exchanges credentials for a bearer token used by mobile clients.
func (h *Handler) issueBearer(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.New("bad_request:api", "invalid request body"))
		return
	}
	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		apierror.Respond(c, apierror.New("unauthorized:auth", err.Error()))
		return
	}
	token, expiresAt, err := h.signer.Sign(user)
	if err != nil {
		apierror.Respond(c, apierror.Wrap("offline:auth", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"user":      user,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if token, err := c.Cookie(h.auth.AuthCookieName()); err == nil && token != "" {
		_ = h.auth.RevokeToken(c.Request.Context(), token)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
