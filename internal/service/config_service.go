package service

import (
	"context"
	"fmt"

	"github.com/aetherlabs/aether-backend/internal/models"
)

// ConfigService reads and updates the process-wide generation settings.
type ConfigService struct {
	store ConfigStore
}

func NewConfigService(store ConfigStore) *ConfigService {
	return &ConfigService{store: store}
}

func (s *ConfigService) Get(ctx context.Context) (models.AppConfig, error) {
	return s.store.Get(ctx)
}

// Update replaces the config. It affects only requests created afterwards;
// existing requests keep their captured cost and expiry.
func (s *ConfigService) Update(ctx context.Context, cfg models.AppConfig) error {
	if cfg.RetentionDays <= 0 {
		return fmt.Errorf("%w: retention days must be positive", models.ErrInvalidInput)
	}
	if cfg.CostPerImage <= 0 || cfg.CostPerVideo <= 0 {
		return fmt.Errorf("%w: fallback costs must be positive", models.ErrInvalidInput)
	}
	return s.store.Update(ctx, cfg)
}
