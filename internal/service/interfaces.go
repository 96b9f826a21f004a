package service

import (
	"context"
	"time"

	"github.com/aetherlabs/aether-backend/internal/freepik"
	"github.com/aetherlabs/aether-backend/internal/models"
)

// The services depend on these narrow interfaces rather than the concrete
// MySQL repositories so the storage engine can be substituted, and so tests
// can run against in-memory fakes.

// UserStore is the credit ledger contract. Debit must be atomic: under
// concurrent debits for the same user a balance never goes negative.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Debit(ctx context.Context, id string, amount int) error
	Credit(ctx context.Context, id string, amount int) error
	SetCredits(ctx context.Context, id string, amount int) error
}

// RequestStore holds generation requests and enforces state-machine
// legality on UpdateStatus, including under concurrent callers.
type RequestStore interface {
	Create(ctx context.Context, req *models.GenerationRequest, retentionDays int) error
	Get(ctx context.Context, id string) (*models.GenerationRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.GenerationRequest, error)
	List(ctx context.Context) ([]models.GenerationRequest, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.GenerationRequest, error)
	UpdateStatus(ctx context.Context, id string, newStatus models.RequestStatus, outputURL, detail string) error
	SetProviderTask(ctx context.Context, id, taskID string) error
}

// ModelStore is the AI model catalog.
type ModelStore interface {
	Get(ctx context.Context, id string) (*models.AIModel, error)
	ListActive(ctx context.Context) ([]models.AIModel, error)
	List(ctx context.Context) ([]models.AIModel, error)
	Create(ctx context.Context, m *models.AIModel) error
	Update(ctx context.Context, m *models.AIModel) error
	Delete(ctx context.Context, id string) error
}

// ConfigStore persists the admin-mutable app configuration.
type ConfigStore interface {
	Get(ctx context.Context) (models.AppConfig, error)
	Update(ctx context.Context, cfg models.AppConfig) error
}

// ProviderClient is the generation provider task API.
type ProviderClient interface {
	SubmitImage(ctx context.Context, prompt string) (*freepik.Media, error)
	SubmitVideo(ctx context.Context, req freepik.VideoRequest) (string, error)
	PollTask(ctx context.Context, taskID string) (freepik.TaskStatus, error)
}

// MediaStore persists generated artifacts and removes them on expiry.
type MediaStore interface {
	Store(ctx context.Context, requestID string, mediaType models.MediaType, media *freepik.Media) (string, error)
	Remove(ctx context.Context, outputURL string) error
}
