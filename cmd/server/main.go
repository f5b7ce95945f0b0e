// NeuroExpert site server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/neuroexpert/site/internal/api"
	"github.com/neuroexpert/site/internal/chat"
	"github.com/neuroexpert/site/internal/config"
	"github.com/neuroexpert/site/internal/contact"
	"github.com/neuroexpert/site/internal/identity"
	"github.com/neuroexpert/site/internal/media"
	"github.com/neuroexpert/site/internal/middleware"
	"github.com/neuroexpert/site/internal/retention"
	"github.com/neuroexpert/site/internal/session"
	"github.com/neuroexpert/site/internal/store"
	"github.com/neuroexpert/site/web"
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

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	sessions, checks, closeSessions, err := newSessionStore(cfg, repo)
	if err != nil {
		return err
	}
	defer closeSessions()

	catalog, err := media.LoadCatalog(cfg.MediaCatalog)
	if err != nil {
		return fmt.Errorf("load media catalog: %w", err)
	}

	providers := chat.NewRegistry(
		chat.NewOpenAIProvider(cfg.Chat.OpenAIKey, ""),
		chat.NewAnthropicProvider(cfg.Chat.AnthropicKey, ""),
		chat.NewGeminiProvider(cfg.Chat.GoogleKey, cfg.Chat.GeminiBaseURL, &http.Client{Timeout: cfg.Chat.Timeout}),
	)
	slog.Info("Chat providers registered", "providers", providers.Names(), "default_model", cfg.Chat.DefaultModel)

	convLog, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	chatSvc := chat.NewService(repo, providers, convLog, chat.Options{
		DefaultModel:       cfg.Chat.DefaultModel,
		AllowedModels:      cfg.Chat.AllowedModels,
		MaxContextTokens:   cfg.Chat.MaxContextTokens,
		MaxHistoryMessages: cfg.Chat.MaxHistoryMessages,
		Timeout:            cfg.Chat.Timeout,
	}, logger)

	notifier := contact.NewTelegramNotifier(
		cfg.Contact.TelegramToken,
		cfg.Contact.TelegramChatID,
		cfg.Contact.TelegramBaseURL,
		&http.Client{Timeout: cfg.Contact.Timeout},
	)
	if !notifier.Configured() {
		slog.Warn("Telegram not configured, contact form submissions will be rejected")
	}

	chatLimiter := middleware.NewRateLimiter(cfg.RateLimit.ChatPerMinute, cfg.RateLimit.Window)
	defer chatLimiter.Stop()
	contactLimiter := middleware.NewRateLimiter(cfg.RateLimit.ContactPerMinute, cfg.RateLimit.Window)
	defer contactLimiter.Stop()

	// Initialize handlers.
	chatHandler := chat.NewHandler(chatSvc, cfg.Chat.MaxMessageBytes, originPatterns(cfg.AllowedOrigins()), logger)
	contactHandler := contact.NewHandler(repo, notifier, cfg.Contact.Timeout, logger)
	mediaHandler := media.NewHandler(catalog, logger)
	sessionHandler := session.NewHandler(sessions, cfg.SessionTTL, !cfg.IsDevelopment(), logger)

	checks = append([]api.Check{{Name: "database", Ping: repo.Ping}}, checks...)
	if notifier.Configured() {
		checks = append(checks, api.Check{Name: "telegram", Optional: true, Ping: notifier.Ping})
	}
	healthHandler := api.NewHealthHandler(5*time.Second, checks...)

	spa, err := web.Handler(cfg.StaticDir)
	if err != nil {
		return fmt.Errorf("initialize frontend: %w", err)
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.SecurityHeaders(!cfg.IsDevelopment()))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware)

	r.Get("/api/health", healthHandler.Health)
	chatHandler.RegisterRoutes(r, middleware.RateLimit(chatLimiter))
	contactHandler.RegisterRoutes(r, middleware.RateLimit(contactLimiter))
	mediaHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)

	// Serve the frontend (SPA catch-all).
	r.Handle("/*", spa)

	// WebSocket chat connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return retention.NewWorker(repo, cfg.ChatRetention, retention.DefaultInterval, logger).Run(gctx)
	})

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newSessionStore selects the store behind GET /api/session and returns
// any health checks it needs plus a close function.
func newSessionStore(cfg *config.Config, repo *store.SQLiteStore) (session.Store, []api.Check, func(), error) {
	switch cfg.SessionStore {
	case "memory":
		slog.Info("Session store: memory")
		return session.NewMemoryStore(), nil, func() {}, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("Session store: redis", "addr", opts.Addr)
		check := api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Error("Failed to close redis client", "error", err)
			}
		}
		return session.NewRedisStore(client, "", cfg.SessionTTL), []api.Check{check}, closeFn, nil
	default:
		slog.Info("Session store: sqlite")
		return session.RepositoryStore{Repo: repo}, nil, func() {}, nil
	}
}

// originPatterns converts CORS origins into WebSocket host patterns.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
