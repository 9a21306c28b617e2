// Command abcsmc-web serves the dashboard of a remote history database. It is
// configured through the environment only, for container deployments.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/adapters/turso"
	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/config"
	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/database"
	"github.com/emiliopalmerini/abcsmc/internal/logging"
	"github.com/emiliopalmerini/abcsmc/internal/migrate"
	"github.com/emiliopalmerini/abcsmc/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !database.IsRemote(cfg.Database.URL) {
		return fmt.Errorf("ABCSMC_DATABASE_URL must point to a libsql server, got %q", cfg.Database.URL)
	}
	if cfg.Database.AuthToken == "" {
		return fmt.Errorf("ABCSMC_AUTH_TOKEN is required")
	}

	addr := cfg.Server.Addr
	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid PORT: %s", p)
		}
		addr = fmt.Sprintf(":%d", port)
	}

	logger, err := logging.New(cfg.Log.Level, "json")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.New(cfg.Database.URL, cfg.Database.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := migrate.New(db.DB, logger).Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("serving dashboard", zap.String("addr", addr))
	server := web.NewServer(web.Config{Addr: addr, ShutdownTimeout: cfg.Server.ShutdownTimeout}, turso.NewHistoryRepository(db.DB), logger)
	return server.Start(ctx)
}
