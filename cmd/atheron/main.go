package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	atheron "github.com/om01deshmukh/Atheron-AI"
	"github.com/om01deshmukh/Atheron-AI/internal/alert"
	"github.com/om01deshmukh/Atheron-AI/internal/api"
	"github.com/om01deshmukh/Atheron-AI/internal/config"
	"github.com/om01deshmukh/Atheron-AI/internal/repository"
	"github.com/om01deshmukh/Atheron-AI/internal/service"
	"github.com/om01deshmukh/Atheron-AI/internal/ws"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(atheron.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize queries and services
	queries := repository.New(pool)
	alerts := alert.New(cfg.AlertBotToken, cfg.AlertChatID)
	userService := service.NewUserService(queries, alerts)
	sessionService := service.NewSessionService(queries)
	perplexity := service.NewPerplexityService(cfg.PerplexityKey, cfg.PerplexityURL, cfg.ChatModel)
	searchService := service.NewSearchService()
	chatService := service.NewChatService(cfg, perplexity, searchService, sessionService)

	// Assemble HTTP surface
	apiServer := api.NewServer(api.Deps{
		Cfg:      cfg,
		Sessions: sessionService,
		Users:    userService,
		Chat:     chatService,
		Alerts:   alerts,
	})
	wsHandler := ws.NewHandler(cfg, userService, chatService)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Handler())
	mux.Handle("/ws", wsHandler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ListenAddr, "model", cfg.ChatModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
}
