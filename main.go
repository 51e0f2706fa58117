package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbff/internal/api"
	"chatbff/internal/auth"
	"chatbff/internal/blob"
	"chatbff/internal/config"
	"chatbff/internal/logging"
	"chatbff/internal/memory"
	"chatbff/internal/models"
	"chatbff/internal/redis"
	"chatbff/internal/resumable"
	"chatbff/internal/service/ai"
	"chatbff/internal/service/chat"
	"chatbff/internal/service/normalize"
	"chatbff/internal/storage"
	"chatbff/internal/store"
	"chatbff/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("CHATBFF_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening database", "driver", cfg.Database.Driver)
	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, user_tokens, chats, messages, streams, documents, suggestions
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	chatStore, err := store.New(db, cfg.Database.Driver)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, continuing without it", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}
	// resumable streams dial their own connection on first use
	var connect resumable.Connector
	if cfg.Redis.Enabled() {
		connect = func() (*redis.Client, error) { return redis.NewRedisClient(cfg.Redis) }
	}
	streams := resumable.NewRegistry(connect, cfg.Stream.Retention, logger)
	defer streams.Close()

	authService := auth.NewService(db, rdb, cfg.Auth.SessionTTL)
	signer, err := auth.NewTokenSigner(cfg.Auth.Secret, cfg.Auth.BearerTTL)
	if err != nil {
		log.Fatalf("init token signer: %v", err)
	}
	resolver := auth.NewResolver(auth.BearerStrategy{Signer: signer}, auth.CookieStrategy{Sessions: authService})

	blobs, err := blob.NewLocalStore(cfg.Files.BaseDir, cfg.Files.PublicURL)
	if err != nil {
		log.Fatalf("init blob store: %v", err)
	}
	localFiles, err := normalize.NewBlobFetcher(ctx, blobs)
	if err != nil {
		log.Fatalf("init file loader: %v", err)
	}
	normalizer := normalize.New(localFiles, normalize.NewHTTPFetcher(30*time.Second, cfg.Files.MaxUploadBytes), logger)

	factory := ai.NewFactory(cfg)
	deps := ai.Deps{
		Tools:          cfg.Tools,
		ThinkingBudget: cfg.Chat.ThinkingBudget,
		Documents:      chatStore,
		Blobs:          blobs,
		Models:         factory,
		ArtifactModel:  cfg.Chat.ArtifactModel,
		Memory:         memory.NewClient(cfg.Memory, logger),
		Logger:         logger,
	}
	var transcriber ai.Transcriber
	if oa := ai.NewOpenAIClient(cfg); oa != nil {
		deps.Images = oa
		transcriber = oa
	} else {
		logger.Warn("openai api key missing, image generation and speech to text are disabled")
	}
	tools := ai.NewRegistry(ctx, deps)

	jobs := worker.NewDispatcher(worker.Config{
		MinWorkers:  cfg.Worker.MinWorkers,
		MaxWorkers:  cfg.Worker.MaxWorkers,
		QueueSize:   cfg.Worker.QueueSize,
		IdleTimeout: cfg.Worker.IdleTimeout,
	})
	defer jobs.Stop()

	orchestrator := chat.New(chat.Deps{
		Store:      chatStore,
		Normalizer: normalizer,
		Tools:      tools,
		Models:     factory,
		Titles:     ai.NewTitleGenerator(factory, cfg.Chat.TitleModel),
		Jobs:       jobs,
		Streams:    streams,
		Guard:      chat.NewTurnGuard(rdb, cfg.Chat.TurnTimeout+time.Minute, logger),
		Logger:     logger,
	}, chat.Config{
		MaxSteps: cfg.Chat.MaxSteps,
		Entitlements: map[models.UserType]int{
			models.UserTypeGuest:   cfg.Chat.GuestMessagesPerDay,
			models.UserTypeRegular: cfg.Chat.RegularMessagesPerDay,
		},
		TitleWait:    cfg.Chat.TitleWait,
		SmoothDelay:  cfg.Chat.SmoothDelay,
		TurnTimeout:  cfg.Chat.TurnTimeout,
		ModelIDs:     modelIDs(cfg),
		DefaultModel: cfg.Chat.DefaultModel,
	})

	cleanInterval := cfg.Stream.CleanInterval
	if cleanInterval <= 0 {
		cleanInterval = chat.DefaultStreamCleanInterval
	}
	retention := cfg.Stream.Retention
	if retention <= 0 {
		retention = chat.DefaultStreamRetention
	}
	chat.StartStreamCleaner(ctx, chatStore, cleanInterval, retention, logger)

	handlers := api.NewHandler(api.Options{
		Auth:           authService,
		Signer:         signer,
		Resolver:       resolver,
		Store:          chatStore,
		Chats:          orchestrator,
		Streams:        streams,
		Blobs:          blobs,
		Transcriber:    transcriber,
		DefaultModel:   cfg.Chat.DefaultModel,
		MaxUploadBytes: cfg.Files.MaxUploadBytes,
	})

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}
	handlers.RegisterRoutes(router)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func modelIDs(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Models))
	for id := range cfg.Models {
		ids = append(ids, id)
	}
	return ids
}
