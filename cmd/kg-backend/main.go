// Package main is the entry point for the kg-backend server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localgraph/kg-backend/internal/cache"
	"github.com/localgraph/kg-backend/internal/config"
	"github.com/localgraph/kg-backend/internal/httpapi"
	"github.com/localgraph/kg-backend/internal/indexer"
	"github.com/localgraph/kg-backend/internal/search"
	"github.com/localgraph/kg-backend/internal/store"
	"github.com/localgraph/kg-backend/internal/topology"
	"github.com/localgraph/kg-backend/internal/upload"
)

// shutdownTimeout bounds how long the process waits for in-flight requests
// and the index supervisor to wind down before exiting.
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.SetupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up logging: %v\n", err)
		os.Exit(1)
	}

	slog.Info("starting kg-backend", "version", config.VersionString(), "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.InputDir, 0755); err != nil {
		slog.Error("failed to create input directory", "error", err)
		os.Exit(1)
	}

	artifactStore, err := store.New(cfg.DataDir)
	if err != nil {
		slog.Error("failed to construct artifact store", "error", err)
		os.Exit(1)
	}

	metricsCache := cache.New(artifactStore)

	// Upload Intake and the Index Job Supervisor each need the other; the
	// intake's indexer reference is bound after the supervisor exists.
	intake := upload.New(cfg.InputDir, nil)
	supervisor := indexer.New(indexer.Config{
		Executable: cfg.IndexerExecutable,
		DataDir:    cfg.DataDir,
		InputDir:   cfg.InputDir,
	}, artifactStore, metricsCache, intake)
	intake.SetIndexer(supervisor)

	searchGateway, err := search.New(artifactStore, search.Config{
		Model:          cfg.SearchModel,
		BaseURL:        cfg.SearchBaseURL,
		APIKey:         cfg.SearchAPIKey,
		TimeoutSeconds: cfg.SearchTimeoutSecs,
	})
	if err != nil {
		slog.Error("failed to construct search gateway", "error", err)
		os.Exit(1)
	}

	projector := topology.New(artifactStore)

	if _, err := store.LoadSettings(cfg.SettingsPath); err != nil {
		slog.Warn("settings file missing or invalid at startup, continuing without it", "error", err)
	} else {
		slog.Info("indexer settings loaded", "path", cfg.SettingsPath)
	}

	server := httpapi.NewServer(
		artifactStore, metricsCache, supervisor, intake, searchGateway, projector,
		cfg.CORSOrigin, config.VersionString(),
	)

	settingsWatcher, err := config.StartSettingsWatcher(ctx, cfg.SettingsPath, func() {
		if _, err := store.LoadSettings(cfg.SettingsPath); err != nil {
			slog.Warn("settings file changed but failed to reload", "error", err)
			return
		}
		slog.Info("indexer settings reloaded", "path", cfg.SettingsPath)
	})
	if err != nil {
		slog.Warn("failed to start settings watcher, continuing without hot-reload", "error", err)
	}
	defer settingsWatcher.Stop()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		supervisor.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	slog.Info("http server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", "error", err)
		os.Exit(1)
	}

	slog.Info("kg-backend stopped")
}
