// EduGenie - teacher assistant chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/sparkmindlabs/edugenie/internal/api"
	"github.com/sparkmindlabs/edugenie/internal/chat"
	"github.com/sparkmindlabs/edugenie/internal/config"
	"github.com/sparkmindlabs/edugenie/internal/extract"
	"github.com/sparkmindlabs/edugenie/internal/gate"
	"github.com/sparkmindlabs/edugenie/internal/identity"
	"github.com/sparkmindlabs/edugenie/internal/llm"
	"github.com/sparkmindlabs/edugenie/internal/middleware"
	"github.com/sparkmindlabs/edugenie/internal/store"
	"github.com/sparkmindlabs/edugenie/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "dev", cfg.IsDevelopment(), "config", cfg)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Sessions belong to sockets, and no socket survives a restart.
	purged, err := repo.PurgeSessions(context.Background())
	if err != nil {
		slog.Error("Failed to purge stale sessions", "error", err)
		os.Exit(1)
	}
	slog.Info("Stale session cleanup complete", "sessions_deleted", purged)

	llmClient, err := llm.NewOpenAIClient(llm.ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize completion client", "error", err)
		os.Exit(1)
	}

	accessGate, err := gate.New(cfg.Access.Code, cfg.Access.MaxAttempts)
	if err != nil {
		slog.Error("Failed to initialize access gate", "error", err)
		os.Exit(1)
	}

	imageMode := extract.ImageMode(cfg.Upload.ImageStrategy)
	if imageMode == extract.ImageModeOCR && !extract.OCRAvailable {
		slog.Error("EXTRACT_IMAGE_STRATEGY=ocr requires a build with -tags tesseract")
		os.Exit(1)
	}
	backends := map[extract.Strategy]extract.Backend{
		extract.DocumentText:    extract.PDFText{},
		extract.RemoteVisionOCR: extract.Vision{Client: llmClient},
	}
	if extract.OCRAvailable {
		backends[extract.LocalOCR] = extract.Tesseract{Languages: cfg.Upload.OCRLanguages}
	}
	extractor := extract.New(extract.Config{
		ImageMode:         imageMode,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxBytes:          cfg.Upload.MaxBytes,
		Timeout:           cfg.LLM.Timeout,
	}, backends, logger)
	slog.Info("Reference extractor initialized", "image_mode", imageMode, "local_ocr", extract.OCRAvailable)

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	engine := chat.NewEngine(accessGate, llmClient, extractor, chat.WithLogger(logger))
	conns := chat.NewConnectionManager()
	chatService := chat.NewService(repo, engine, chat.WithLiveSessions(conns))

	// Initialize handlers.
	chatHandler := chat.NewHandler(
		chatService,
		conns,
		chat.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		conversationLogger,
		chat.HandlerConfig{
			AllowedOrigin:  cfg.FrontendURL,
			IsDev:          cfg.IsDevelopment(),
			MaxUploadBytes: cfg.Upload.MaxBytes,
		},
	)
	defer chatHandler.Close()

	healthHandler := api.NewHealthHandler(repo, 5*time.Second)

	uiConfig := api.DefaultUIConfig()
	uiConfig.CodeLength = cfg.Access.CodeLength
	uiConfig.MaxAttempts = accessGate.MaxAttempts()
	uiConfig.AllowedExtensions = extractor.AllowedExtensions()
	uiConfig.MaxUploadBytes = cfg.Upload.MaxBytes
	configHandler := api.NewConfigHandler(uiConfig)

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	configHandler.RegisterRoutes(r)

	// Chat socket, upload and export.
	chatHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Completions can take up to COMPLETION_TIMEOUT, and sockets are long
	// lived, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat.StartTTLWorker(ctx, chatService, cfg.SessionTTL, chat.DefaultSweepInterval)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
