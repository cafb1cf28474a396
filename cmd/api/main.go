package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/autotaghq/autotag/internal/config"
	"github.com/autotaghq/autotag/pkg/database"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	poolOpts := []database.PoolOption{database.WithAfterConnect(pgxvec.RegisterTypes)}
	if cfg.DatabaseMaxConns > 0 {
		poolOpts = append(poolOpts, database.WithMaxConns(cfg.DatabaseMaxConns))
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, poolOpts...)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	app, err := NewApp(ctx, cfg, db)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := app.Run(runCtx)
	stop()

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}

	if runErr != nil {
		slog.Error("Server error", "error", runErr)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// setupLogging configures slog with the specified log level.
func setupLogging(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
