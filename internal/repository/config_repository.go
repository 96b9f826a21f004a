package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aetherlabs/aether-backend/internal/models"
)

// ConfigRepository persists the single app_config row.
type ConfigRepository struct {
	db *sql.DB
}

func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Get(ctx context.Context) (models.AppConfig, error) {
	const query = `SELECT retention_days, cost_per_image, cost_per_video FROM app_config WHERE id = 1`
	row := r.db.QueryRowContext(ctx, query)
	var cfg models.AppConfig
	if err := row.Scan(&cfg.RetentionDays, &cfg.CostPerImage, &cfg.CostPerVideo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Defaults mirror the seed row.
			return models.AppConfig{RetentionDays: 7, CostPerImage: 1, CostPerVideo: 5}, nil
		}
		return models.AppConfig{}, fmt.Errorf("scan app config: %w", err)
	}
	return cfg, nil
}

func (r *ConfigRepository) Update(ctx context.Context, cfg models.AppConfig) error {
	if cfg.RetentionDays <= 0 || cfg.CostPerImage <= 0 || cfg.CostPerVideo <= 0 {
		return fmt.Errorf("config values must be positive")
	}
	const query = `
INSERT INTO app_config (id, retention_days, cost_per_image, cost_per_video)
VALUES (1, ?, ?, ?)
ON DUPLICATE KEY UPDATE retention_days = VALUES(retention_days),
    cost_per_image = VALUES(cost_per_image), cost_per_video = VALUES(cost_per_video)`
	if _, err := r.db.ExecContext(ctx, query, cfg.RetentionDays, cfg.CostPerImage, cfg.CostPerVideo); err != nil {
		return fmt.Errorf("update app config: %w", err)
	}
	return nil
}
