package db

import (
	"context"
	"fmt"

	"github.com/quatton/qfold/pkg/db/migrations"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrate applies pending migrations.
func Migrate(ctx context.Context, db *bun.DB, logger *qlog.Logger) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	if group.ID == 0 {
		logger.Info("database is up to date")
		return nil
	}
	logger.Info("migrated", "group", group.String())
	return nil
}
