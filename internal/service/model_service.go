package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aetherlabs/aether-backend/internal/models"
)

// ModelService administers the AI model catalog. Catalog edits never touch
// in-flight or historical requests; those carry their own cost snapshots.
type ModelService struct {
	catalog ModelStore
}

func NewModelService(catalog ModelStore) *ModelService {
	return &ModelService{catalog: catalog}
}

func (s *ModelService) Get(ctx context.Context, id string) (*models.AIModel, error) {
	return s.catalog.Get(ctx, id)
}

func (s *ModelService) ListActive(ctx context.Context) ([]models.AIModel, error) {
	return s.catalog.ListActive(ctx)
}

func (s *ModelService) List(ctx context.Context) ([]models.AIModel, error) {
	return s.catalog.List(ctx)
}

func (s *ModelService) Create(ctx context.Context, m *models.AIModel) error {
	if err := validateModel(m); err != nil {
		return err
	}
	return s.catalog.Create(ctx, m)
}

func (s *ModelService) Update(ctx context.Context, m *models.AIModel) error {
	if err := validateModel(m); err != nil {
		return err
	}
	return s.catalog.Update(ctx, m)
}

func (s *ModelService) Delete(ctx context.Context, id string) error {
	return s.catalog.Delete(ctx, id)
}

func validateModel(m *models.AIModel) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: model id is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: model name is required", models.ErrInvalidInput)
	}
	if m.CostPerGeneration < 0 {
		return fmt.Errorf("%w: cost per generation must be non-negative", models.ErrInvalidInput)
	}
	if m.DefaultCfgScale < 0 || m.DefaultCfgScale > 1 {
		return fmt.Errorf("%w: default cfg scale must be within [0, 1]", models.ErrInvalidInput)
	}
	if m.MaxDuration < 0 || m.DefaultDuration < 0 {
		return fmt.Errorf("%w: durations must be non-negative", models.ErrInvalidInput)
	}
	if m.MaxDuration > 0 && m.DefaultDuration > m.MaxDuration {
		return fmt.Errorf("%w: default duration exceeds max duration", models.ErrInvalidInput)
	}
	return nil
}
