package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/adapters/turso"
	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/config"
	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/database"
	"github.com/emiliopalmerini/abcsmc/internal/migrate"
	"github.com/emiliopalmerini/abcsmc/internal/ports"
)

// AppContext holds the shared dependencies of the commands that use the
// history database.
type AppContext struct {
	DB      *database.Client
	History ports.HistoryRepository
	Logger  *zap.Logger
}

// NewAppContext opens the history database and applies pending migrations.
func NewAppContext(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AppContext, error) {
	db, err := database.New(cfg.Database.URL, cfg.Database.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	applied, err := migrate.New(db.DB, logger).Up(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if applied > 0 {
		logger.Debug("database migrated", zap.Int("applied", applied))
	}
	return &AppContext{
		DB:      db,
		History: turso.NewHistoryRepository(db.DB),
		Logger:  logger,
	}, nil
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
