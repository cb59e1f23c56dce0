package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded goose migrations on PostgreSQL and falls back
// to gorm AutoMigrate on other dialects.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return MigrateModels(db, &models.Action{}, &models.Claim{}, &models.ActionLog{})
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	log.Info().Msg("database migration completed successfully")
	return nil
}

// MigrateModels auto-migrates the provided models.
func MigrateModels(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	log.Info().Msg("database migration completed successfully")
	return nil
}
