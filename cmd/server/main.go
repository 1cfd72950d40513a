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

	"github.com/JonMunkholm/csvbatch/internal/config"
	"github.com/JonMunkholm/csvbatch/internal/core"
	"github.com/JonMunkholm/csvbatch/internal/history"
	"github.com/JonMunkholm/csvbatch/internal/logging"
	"github.com/JonMunkholm/csvbatch/internal/source"
	"github.com/JonMunkholm/csvbatch/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_dir", cfg.Batch.LogDir,
		"request_timeout", cfg.Batch.RequestTimeout,
		"history_postgres", cfg.History.UsePostgres(),
	)

	if err := os.MkdirAll(cfg.Batch.LogDir, 0o755); err != nil {
		slog.Error("failed to create log directory", "dir", cfg.Batch.LogDir, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var store history.Store
	store, err = history.Open(ctx, cfg.History)
	if err != nil {
		slog.Warn("run history unavailable, keeping it in memory", "error", err)
		store = history.NewMemoryStore()
	}
	defer store.Close()

	opts := []core.HTTPExecutorOption{core.WithRequestTimeout(cfg.Batch.RequestTimeout)}
	if cfg.Batch.InsecureTLS {
		slog.Warn("TLS certificate verification disabled for remote calls")
		opts = append(opts, core.WithInsecureTLS())
	}
	executor := core.NewHTTPExecutor(core.Endpoints{
		ContentServer: cfg.Remote.ContentServerURL,
		Directory:     cfg.Remote.DirectoryURL,
	}, opts...)

	service, err := core.NewService(executor, source.NewRouter(cfg.FTP.Timeout), store, core.ServiceConfig{
		LogDir:          cfg.Batch.LogDir,
		DefaultStartRow: cfg.Batch.DefaultStartRow,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	slog.Info("actions registered", "count", len(service.Actions()))

	server := web.NewServer(service, store, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go history.RunRetention(jobCtx, store, history.RetentionConfig{
		MaxAge:   time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
		Interval: cfg.History.PruneInterval,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Rows already logged stay logged; the run resumes from a later start row.
		if service.Running() {
			slog.Info("stopping active run")
		}
		if err := service.Close(shutdownCtx); err != nil {
			slog.Warn("run did not stop in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
