package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aetherlabs/aether-backend/internal/models"
)

// ModelRepository is the AI model catalog.
type ModelRepository struct {
	db *sql.DB
}

func NewModelRepository(db *sql.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

const modelColumns = `
id, name, COALESCE(description, ''), cost_per_generation, max_duration, default_duration,
default_cfg_scale, supports_image_to_video, supports_text_to_video, is_active,
created_at, updated_at`

func (r *ModelRepository) Get(ctx context.Context, id string) (*models.AIModel, error) {
	query := `SELECT ` + modelColumns + ` FROM ai_models WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	m, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrModelNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *ModelRepository) ListActive(ctx context.Context) ([]models.AIModel, error) {
	query := `SELECT ` + modelColumns + ` FROM ai_models WHERE is_active = 1 ORDER BY name`
	return r.queryModels(ctx, query)
}

func (r *ModelRepository) List(ctx context.Context) ([]models.AIModel, error) {
	query := `SELECT ` + modelColumns + ` FROM ai_models ORDER BY name`
	return r.queryModels(ctx, query)
}

func (r *ModelRepository) Create(ctx context.Context, m *models.AIModel) error {
	const query = `
INSERT INTO ai_models
    (id, name, description, cost_per_generation, max_duration, default_duration,
     default_cfg_scale, supports_image_to_video, supports_text_to_video, is_active)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Description, m.CostPerGeneration, m.MaxDuration, m.DefaultDuration,
		m.DefaultCfgScale, m.SupportsImageToVideo, m.SupportsTextToVideo, m.IsActive,
	); err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (r *ModelRepository) Update(ctx context.Context, m *models.AIModel) error {
	const query = `
UPDATE ai_models
SET name = ?, description = NULLIF(?, ''), cost_per_generation = ?, max_duration = ?,
    default_duration = ?, default_cfg_scale = ?, supports_image_to_video = ?,
    supports_text_to_video = ?, is_active = ?
WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		m.Name, m.Description, m.CostPerGeneration, m.MaxDuration, m.DefaultDuration,
		m.DefaultCfgScale, m.SupportsImageToVideo, m.SupportsTextToVideo, m.IsActive, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("model rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ModelRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM ai_models WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrModelNotFound
	}
	return nil
}

func (r *ModelRepository) queryModels(ctx context.Context, query string) ([]models.AIModel, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []models.AIModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanModel(row rowScanner) (*models.AIModel, error) {
	var m models.AIModel
	if err := row.Scan(
		&m.ID, &m.Name, &m.Description, &m.CostPerGeneration, &m.MaxDuration,
		&m.DefaultDuration, &m.DefaultCfgScale, &m.SupportsImageToVideo,
		&m.SupportsTextToVideo, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan model: %w", err)
	}
	return &m, nil
}
