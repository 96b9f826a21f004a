// Package testutil provides in-memory fakes for the service-layer stores so
// tests exercise orchestration, state-machine and ledger behavior without
// MySQL, S3 or the provider network.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aetherlabs/aether-backend/internal/freepik"
	"github.com/aetherlabs/aether-backend/internal/models"
)

// MemoryUserStore is a mutex-guarded ledger with the same atomicity contract
// as the MySQL repository: a debit that would overdraw fails completely.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemoryUserStore(users ...models.User) *MemoryUserStore {
	s := &MemoryUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		copied := u
		s.users[u.ID] = &copied
	}
	return s
}

func (s *MemoryUserStore) Get(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryUserStore) List(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryUserStore) Debit(_ context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	if u.Credits < amount {
		return models.ErrInsufficientCredits
	}
	u.Credits -= amount
	return nil
}

func (s *MemoryUserStore) Credit(_ context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Credits += amount
	return nil
}

func (s *MemoryUserStore) SetCredits(_ context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Credits = amount
	return nil
}

// MemoryRequestStore enforces the same state-machine legality as the MySQL
// repository: transitions are conditional on the unique legal predecessor,
// checked under the lock.
type MemoryRequestStore struct {
	mu       sync.Mutex
	requests map[string]*models.GenerationRequest
	order    []string
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*models.GenerationRequest)}
}

// Seed inserts a request as-is, bypassing the create path. For test fixtures.
func (s *MemoryRequestStore) Seed(req models.GenerationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := req
	s.requests[req.ID] = &copied
	s.order = append(s.order, req.ID)
}

func (s *MemoryRequestStore) Create(_ context.Context, req *models.GenerationRequest, retentionDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	req.ID = uuid.NewString()
	req.Status = models.StatusPending
	req.CreatedAt = now
	req.ExpiresAt = now.AddDate(0, 0, retentionDays)
	copied := *req
	s.requests[req.ID] = &copied
	s.order = append(s.order, req.ID)
	return nil
}

func (s *MemoryRequestStore) Get(_ context.Context, id string) (*models.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, models.ErrRequestNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *MemoryRequestStore) ListByUser(_ context.Context, userID string) ([]models.GenerationRequest, error) {
	return s.list(func(req *models.GenerationRequest) bool { return req.UserID == userID })
}

func (s *MemoryRequestStore) List(_ context.Context) ([]models.GenerationRequest, error) {
	return s.list(func(*models.GenerationRequest) bool { return true })
}

func (s *MemoryRequestStore) ListExpired(_ context.Context, now time.Time) ([]models.GenerationRequest, error) {
	return s.list(func(req *models.GenerationRequest) bool {
		return req.Status == models.StatusCompleted && req.ExpiresAt.Before(now)
	})
}

func (s *MemoryRequestStore) list(match func(*models.GenerationRequest) bool) ([]models.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GenerationRequest
	for _, id := range s.order {
		if req := s.requests[id]; match(req) {
			out = append(out, *req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryRequestStore) UpdateStatus(_ context.Context, id string, newStatus models.RequestStatus, outputURL, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return models.ErrRequestNotFound
	}
	if !req.Status.CanTransitionTo(newStatus) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, req.Status, newStatus)
	}
	if newStatus == models.StatusCompleted && outputURL == "" {
		return errors.New("completed transition requires an output url")
	}
	if newStatus != models.StatusCompleted && outputURL != "" {
		return errors.New("output url is only valid for completed transition")
	}
	req.Status = newStatus
	req.OutputURL = outputURL
	req.FailureReason = detail
	return nil
}

func (s *MemoryRequestStore) SetProviderTask(_ context.Context, id, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return models.ErrRequestNotFound
	}
	req.ProviderTaskID = taskID
	return nil
}

// MemoryModelStore is a map-backed catalog.
type MemoryModelStore struct {
	mu     sync.Mutex
	models map[string]*models.AIModel
}

func NewMemoryModelStore(entries ...models.AIModel) *MemoryModelStore {
	s := &MemoryModelStore{models: make(map[string]*models.AIModel)}
	for _, m := range entries {
		copied := m
		s.models[m.ID] = &copied
	}
	return s
}

func (s *MemoryModelStore) Get(_ context.Context, id string) (*models.AIModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return nil, models.ErrModelNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *MemoryModelStore) ListActive(_ context.Context) ([]models.AIModel, error) {
	return s.listWhere(func(m *models.AIModel) bool { return m.IsActive })
}

func (s *MemoryModelStore) List(_ context.Context) ([]models.AIModel, error) {
	return s.listWhere(func(*models.AIModel) bool { return true })
}

func (s *MemoryModelStore) listWhere(match func(*models.AIModel) bool) ([]models.AIModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AIModel
	for _, m := range s.models {
		if match(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryModelStore) Create(_ context.Context, m *models.AIModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.models[m.ID]; exists {
		return fmt.Errorf("model %s already exists", m.ID)
	}
	copied := *m
	s.models[m.ID] = &copied
	return nil
}

func (s *MemoryModelStore) Update(_ context.Context, m *models.AIModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[m.ID]; !ok {
		return models.ErrModelNotFound
	}
	copied := *m
	s.models[m.ID] = &copied
	return nil
}

func (s *MemoryModelStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; !ok {
		return models.ErrModelNotFound
	}
	delete(s.models, id)
	return nil
}

// MemoryConfigStore holds a single AppConfig value.
type MemoryConfigStore struct {
	mu  sync.Mutex
	cfg models.AppConfig
}

func NewMemoryConfigStore(cfg models.AppConfig) *MemoryConfigStore {
	return &MemoryConfigStore{cfg: cfg}
}

func (s *MemoryConfigStore) Get(_ context.Context) (models.AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (s *MemoryConfigStore) Update(_ context.Context, cfg models.AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// FakeProvider is a func-field stub for the provider task client.
type FakeProvider struct {
	SubmitImageFunc func(ctx context.Context, prompt string) (*freepik.Media, error)
	SubmitVideoFunc func(ctx context.Context, req freepik.VideoRequest) (string, error)
	PollTaskFunc    func(ctx context.Context, taskID string) (freepik.TaskStatus, error)
}

func (f *FakeProvider) SubmitImage(ctx context.Context, prompt string) (*freepik.Media, error) {
	if f.SubmitImageFunc != nil {
		return f.SubmitImageFunc(ctx, prompt)
	}
	return nil, errors.New("not implemented")
}

func (f *FakeProvider) SubmitVideo(ctx context.Context, req freepik.VideoRequest) (string, error) {
	if f.SubmitVideoFunc != nil {
		return f.SubmitVideoFunc(ctx, req)
	}
	return "", errors.New("not implemented")
}

func (f *FakeProvider) PollTask(ctx context.Context, taskID string) (freepik.TaskStatus, error) {
	if f.PollTaskFunc != nil {
		return f.PollTaskFunc(ctx, taskID)
	}
	return freepik.TaskStatus{}, errors.New("not implemented")
}

// FakeMediaStore records stored and removed objects. Store returns a URL
// derived from the request id unless StoreFunc overrides it.
type FakeMediaStore struct {
	mu        sync.Mutex
	StoreFunc func(ctx context.Context, requestID string, mediaType models.MediaType, media *freepik.Media) (string, error)
	Stored    []string
	Removed   []string
	RemoveErr error
}

func (f *FakeMediaStore) Store(ctx context.Context, requestID string, mediaType models.MediaType, media *freepik.Media) (string, error) {
	if f.StoreFunc != nil {
		return f.StoreFunc(ctx, requestID, mediaType, media)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "https://media.example.com/outputs/" + requestID
	f.Stored = append(f.Stored, url)
	return url, nil
}

func (f *FakeMediaStore) Remove(_ context.Context, outputURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.Removed = append(f.Removed, outputURL)
	return nil
}
