// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/ciledger-go/internal/config"
	"github.com/olegiv/ciledger-go/internal/handler/api"
	"github.com/olegiv/ciledger-go/internal/ingest"
	"github.com/olegiv/ciledger-go/internal/logging"
	"github.com/olegiv/ciledger-go/internal/middleware"
	"github.com/olegiv/ciledger-go/internal/poller"
	"github.com/olegiv/ciledger-go/internal/store"
	"github.com/olegiv/ciledger-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		_, _ = fmt.Printf("ciledger %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.IsDevelopment())

	// Ensure data directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	ctx := context.Background()
	if cfg.DoSeed {
		if err := store.Seed(ctx, db); err != nil {
			return fmt.Errorf("seeding database: %w", err)
		}
	}

	st := store.New(db)

	pipeline := ingest.NewPipeline(ingest.Config{
		Secret:     cfg.WebhookHMACSecret,
		SourceName: cfg.WebhookSource,
	}, st, logger)
	if !cfg.WebhookVerificationEnabled() {
		slog.Warn("webhook signature verification disabled; set CILEDGER_WEBHOOK_HMAC_SECRET")
	}

	h := api.NewHandler(st, logger, versionInfo)
	wh := api.NewWebhookHandler(pipeline, h)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// Unauthenticated surface: health probe and the webhook receiver,
	// which authenticates deliveries by HMAC signature instead.
	r.Get("/healthz", h.Health)
	r.Post("/webhooks/jenkins", wh.Jenkins)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(st))
		r.Use(middleware.APIRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

		r.Get("/status", h.Status)

		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Get("/tools", h.ListTools)
		r.Get("/tools/{id}", h.GetTool)
		r.Get("/tags", h.ListTags)
		r.Get("/toolchains", h.ListToolchains)
		r.Get("/toolchains/{id}", h.GetToolchain)

		// Mutations require an admin key
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Post("/events", h.CreateEvent)
			r.Put("/events/{id}", h.UpdateEvent)
			r.Delete("/events/{id}", h.DeleteEvent)

			r.Post("/agents", h.CreateAgent)
			r.Put("/agents/{id}", h.UpdateAgent)
			r.Delete("/agents/{id}", h.DeleteAgent)

			r.Post("/tools", h.CreateTool)
			r.Put("/tools/{id}", h.UpdateTool)
			r.Delete("/tools/{id}", h.DeleteTool)

			r.Post("/tags", h.CreateTag)
			r.Delete("/tags/{id}", h.DeleteTag)

			r.Post("/toolchains", h.CreateToolchain)
			r.Put("/toolchains/{id}", h.UpdateToolchain)
			r.Put("/toolchains/{id}/tools", h.SetToolchainTools)
			r.Delete("/toolchains/{id}", h.DeleteToolchain)
		})
	})

	if cfg.PollEnabled {
		p := poller.New(st, cfg.PollInterval, logger)
		if err := p.Start(); err != nil {
			return fmt.Errorf("starting poller: %w", err)
		}
		defer p.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", versionInfo.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
