package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aetherlabs/aether-backend/internal/models"
)

// RequestRepository stores generation requests and enforces the status
// state machine on every update. Rows are never deleted; expiry only marks
// them EXPIRED.
type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
id, user_id, prompt, media_type, model_id, cost_credits, duration, cfg_scale,
COALESCE(source_image, ''), status, COALESCE(output_url, ''), COALESCE(failure_reason, ''),
COALESCE(provider_task_id, ''), created_at, expires_at`

// Create assigns the id, created/expiry timestamps and the PENDING status.
// The passed request is filled in place.
func (r *RequestRepository) Create(ctx context.Context, req *models.GenerationRequest, retentionDays int) error {
	now := time.Now().UTC()
	req.ID = uuid.NewString()
	req.Status = models.StatusPending
	req.CreatedAt = now
	req.ExpiresAt = now.AddDate(0, 0, retentionDays)

	const query = `
INSERT INTO generation_requests
    (id, user_id, prompt, media_type, model_id, cost_credits, duration, cfg_scale,
     source_image, status, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query,
		req.ID, req.UserID, req.Prompt, req.MediaType, req.ModelID, req.CostCredits,
		req.Duration, req.CfgScale, req.SourceImage, req.Status, req.CreatedAt, req.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert generation request: %w", err)
	}
	return nil
}

func (r *RequestRepository) Get(ctx context.Context, id string) (*models.GenerationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM generation_requests WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *RequestRepository) ListByUser(ctx context.Context, userID string) ([]models.GenerationRequest, error) {
	query := `SELECT ` + requestColumns + `
FROM generation_requests WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests by user: %w", err)
	}
	return collectRequests(rows)
}

func (r *RequestRepository) List(ctx context.Context) ([]models.GenerationRequest, error) {
	query := `SELECT ` + requestColumns + `
FROM generation_requests ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return collectRequests(rows)
}

// ListExpired returns COMPLETED requests whose retention deadline has
// passed. Requests in any other status are never candidates for expiry.
func (r *RequestRepository) ListExpired(ctx context.Context, now time.Time) ([]models.GenerationRequest, error) {
	query := `SELECT ` + requestColumns + `
FROM generation_requests WHERE status = ? AND expires_at < ?`
	rows, err := r.db.QueryContext(ctx, query, models.StatusCompleted, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired requests: %w", err)
	}
	return collectRequests(rows)
}

// UpdateStatus applies a state-machine transition. The update is conditional
// on the request still being in the unique legal predecessor state, so a
// concurrent caller that got there first makes this one fail with
// ErrInvalidTransition instead of silently regressing the request.
//
// outputURL is required for COMPLETED and forbidden otherwise; EXPIRED
// clears any stored URL. detail lands in failure_reason for FAILED.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, newStatus models.RequestStatus, outputURL, detail string) error {
	pred, ok := newStatus.Predecessor()
	if !ok {
		return fmt.Errorf("%w: %s is not a transition target", models.ErrInvalidTransition, newStatus)
	}
	if newStatus == models.StatusCompleted && outputURL == "" {
		return fmt.Errorf("completed transition requires an output url")
	}
	if newStatus != models.StatusCompleted && outputURL != "" {
		return fmt.Errorf("output url is only valid for completed transition")
	}

	const query = `
UPDATE generation_requests
SET status = ?, output_url = NULLIF(?, ''), failure_reason = NULLIF(?, '')
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, newStatus, outputURL, detail, id, pred)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("status rows affected: %w", err)
	}
	if affected == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, newStatus)
	}
	return nil
}

func (r *RequestRepository) SetProviderTask(ctx context.Context, id, taskID string) error {
	const query = `UPDATE generation_requests SET provider_task_id = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, taskID, id)
	if err != nil {
		return fmt.Errorf("set provider task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("provider task rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrRequestNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.GenerationRequest, error) {
	var req models.GenerationRequest
	if err := row.Scan(
		&req.ID, &req.UserID, &req.Prompt, &req.MediaType, &req.ModelID,
		&req.CostCredits, &req.Duration, &req.CfgScale, &req.SourceImage,
		&req.Status, &req.OutputURL, &req.FailureReason, &req.ProviderTaskID,
		&req.CreatedAt, &req.ExpiresAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan generation request: %w", err)
	}
	return &req, nil
}

func collectRequests(rows *sql.Rows) ([]models.GenerationRequest, error) {
	defer rows.Close()
	var out []models.GenerationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}
