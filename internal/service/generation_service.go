package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aetherlabs/aether-backend/internal/freepik"
	"github.com/aetherlabs/aether-backend/internal/models"
)

// creditAdvisory is appended to every terminal failure reason. Credits are
// deliberately not refunded on failure; reconciliation is a manual admin
// operation.
const creditAdvisory = "credits were not refunded, please contact an administrator"

// GenerationService is the request orchestrator: the only component allowed
// to both debit credits and create a request, keeping the two in lockstep.
type GenerationService struct {
	log       *slog.Logger
	users     UserStore
	requests  RequestStore
	catalog   ModelStore
	appConfig ConfigStore
	provider  ProviderClient
	media     MediaStore
	retention *RetentionService

	pollInterval    time.Duration
	pollMaxAttempts int

	polls sync.WaitGroup
}

func NewGenerationService(
	log *slog.Logger,
	users UserStore,
	requests RequestStore,
	catalog ModelStore,
	appConfig ConfigStore,
	provider ProviderClient,
	media MediaStore,
	retention *RetentionService,
	pollInterval time.Duration,
	pollMaxAttempts int,
) *GenerationService {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pollMaxAttempts <= 0 {
		pollMaxAttempts = 30
	}
	return &GenerationService{
		log:             log,
		users:           users,
		requests:        requests,
		catalog:         catalog,
		appConfig:       appConfig,
		provider:        provider,
		media:           media,
		retention:       retention,
		pollInterval:    pollInterval,
		pollMaxAttempts: pollMaxAttempts,
	}
}

// SubmitInput carries one generation submission. Nil Duration/CfgScale mean
// "use the model defaults".
type SubmitInput struct {
	UserID      string
	Prompt      string
	MediaType   models.MediaType
	ModelID     string
	Duration    *int
	CfgScale    *float64
	SourceImage string
}

// Submit validates the input, debits the cost and drives the request through
// the provider. Validation and insufficient-funds failures happen before any
// request row exists, leaving no partial state.
//
// For IMAGE the provider call is a single round trip and the returned request
// is already terminal. For VIDEO the request is returned in PROCESSING while
// a background goroutine polls the provider task.
func (s *GenerationService) Submit(ctx context.Context, in SubmitInput) (*models.GenerationRequest, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, models.ErrEmptyPrompt
	}
	if in.MediaType != models.MediaImage && in.MediaType != models.MediaVideo {
		return nil, fmt.Errorf("%w: unsupported media type %q", models.ErrInvalidInput, in.MediaType)
	}

	model, err := s.catalog.Get(ctx, in.ModelID)
	if err != nil {
		return nil, err
	}
	if !model.IsActive {
		return nil, models.ErrModelInactive
	}

	cfg, err := s.appConfig.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}

	req := &models.GenerationRequest{
		UserID:      in.UserID,
		Prompt:      strings.TrimSpace(in.Prompt),
		MediaType:   in.MediaType,
		ModelID:     model.ID,
		SourceImage: in.SourceImage,
	}

	switch in.MediaType {
	case models.MediaImage:
		if in.SourceImage != "" {
			return nil, fmt.Errorf("%w: source image is only valid for video generation", models.ErrUnsupportedCapability)
		}
	case models.MediaVideo:
		if in.SourceImage != "" {
			if !model.SupportsImageToVideo {
				return nil, fmt.Errorf("%w: %s cannot run image-to-video", models.ErrUnsupportedCapability, model.ID)
			}
		} else if !model.SupportsTextToVideo {
			return nil, fmt.Errorf("%w: %s cannot run text-to-video", models.ErrUnsupportedCapability, model.ID)
		}

		req.Duration = model.DefaultDuration
		if in.Duration != nil {
			req.Duration = *in.Duration
		}
		if req.Duration <= 0 {
			return nil, fmt.Errorf("%w: duration must be positive, got %d", models.ErrInvalidInput, req.Duration)
		}
		if model.MaxDuration > 0 && req.Duration > model.MaxDuration {
			return nil, fmt.Errorf("%w: %ds > %ds", models.ErrDurationExceeded, req.Duration, model.MaxDuration)
		}

		req.CfgScale = model.DefaultCfgScale
		if in.CfgScale != nil {
			req.CfgScale = *in.CfgScale
		}
		if req.CfgScale < 0 || req.CfgScale > 1 {
			return nil, fmt.Errorf("%w: cfg scale must be within [0, 1], got %g", models.ErrInvalidInput, req.CfgScale)
		}
	}

	// Snapshot the cost now; later catalog or config edits must not change
	// what this request was charged.
	cost := model.CostPerGeneration
	if cost <= 0 {
		if in.MediaType == models.MediaVideo {
			cost = cfg.CostPerVideo
		} else {
			cost = cfg.CostPerImage
		}
	}
	req.CostCredits = cost

	if err := s.users.Debit(ctx, in.UserID, cost); err != nil {
		return nil, err
	}

	// The user is charged from here on. Detach from the caller's context so
	// a client disconnect cannot strand a debited request without a
	// terminal transition.
	ctx = context.WithoutCancel(ctx)

	if err := s.requests.Create(ctx, req, cfg.RetentionDays); err != nil {
		// The debit already happened; surface loudly, reconciliation is manual.
		s.log.Error("request creation failed after debit", "user_id", in.UserID, "cost", cost, "err", err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.transition(ctx, req, models.StatusProcessing, "", "")

	switch in.MediaType {
	case models.MediaImage:
		s.runImage(ctx, req)
	case models.MediaVideo:
		s.dispatchVideo(ctx, req)
	}

	return req, nil
}

// runImage performs the synchronous single-round-trip image generation and
// reconciles the terminal state before returning.
func (s *GenerationService) runImage(ctx context.Context, req *models.GenerationRequest) {
	media, err := s.provider.SubmitImage(ctx, req.Prompt)
	if err != nil {
		s.log.Error("image generation failed", "request_id", req.ID, "err", err)
		s.markFailed(ctx, req, fmt.Sprintf("generation failed: %v; %s", err, creditAdvisory))
		return
	}

	outputURL, err := s.media.Store(ctx, req.ID, req.MediaType, media)
	if err != nil {
		s.log.Error("storing image output failed", "request_id", req.ID, "err", err)
		s.markFailed(ctx, req, fmt.Sprintf("storing output failed: %v; %s", err, creditAdvisory))
		return
	}

	s.transition(ctx, req, models.StatusCompleted, outputURL, "")
}

// dispatchVideo creates the provider task and hands the request to a
// background polling goroutine. The caller observes PROCESSING immediately.
func (s *GenerationService) dispatchVideo(ctx context.Context, req *models.GenerationRequest) {
	taskID, err := s.provider.SubmitVideo(ctx, freepik.VideoRequest{
		Prompt:      req.Prompt,
		SourceImage: req.SourceImage,
		Duration:    req.Duration,
		CfgScale:    req.CfgScale,
	})
	if err != nil {
		s.log.Error("video task submission failed", "request_id", req.ID, "err", err)
		s.markFailed(ctx, req, fmt.Sprintf("generation failed: %v; %s", err, creditAdvisory))
		return
	}

	req.ProviderTaskID = taskID
	if err := s.requests.SetProviderTask(ctx, req.ID, taskID); err != nil {
		s.log.Error("persisting provider task id failed", "request_id", req.ID, "task_id", taskID, "err", err)
	}

	// Polling survives the submitting HTTP request; there is no cancel
	// operation, only the attempt ceiling. Submit already detached ctx
	// from the caller.
	s.polls.Add(1)
	go s.pollVideo(ctx, req.ID, req.MediaType, taskID)
}

// pollVideo is the bounded retry loop for one video task: fixed interval,
// hard attempt ceiling, ceiling treated as a FAILED outcome.
func (s *GenerationService) pollVideo(ctx context.Context, requestID string, mediaType models.MediaType, taskID string) {
	defer s.polls.Done()

	for attempt := 1; attempt <= s.pollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			s.markFailedByID(ctx, requestID, fmt.Sprintf("polling aborted: %v; %s", ctx.Err(), creditAdvisory))
			return
		case <-time.After(s.pollInterval):
		}

		status, err := s.provider.PollTask(ctx, taskID)
		if err != nil {
			s.log.Error("task poll failed", "request_id", requestID, "task_id", taskID, "attempt", attempt, "err", err)
			s.markFailedByID(ctx, requestID, fmt.Sprintf("provider error: %v; %s", err, creditAdvisory))
			return
		}

		switch status.State {
		case freepik.TaskCompleted:
			outputURL, err := s.media.Store(ctx, requestID, mediaType, &freepik.Media{URL: status.ResultURL})
			if err != nil {
				s.log.Error("storing video output failed", "request_id", requestID, "err", err)
				s.markFailedByID(ctx, requestID, fmt.Sprintf("storing output failed: %v; %s", err, creditAdvisory))
				return
			}
			s.transitionByID(ctx, requestID, models.StatusCompleted, outputURL, "")
			return
		case freepik.TaskFailed:
			s.markFailedByID(ctx, requestID, fmt.Sprintf("provider reported failure: %s; %s", status.Detail, creditAdvisory))
			return
		case freepik.TaskPending:
			if attempt%10 == 0 {
				s.log.Info("video task still pending", "request_id", requestID, "task_id", taskID, "attempt", attempt)
			}
		}
	}

	s.markFailedByID(ctx, requestID, fmt.Sprintf("generation timed out after %d polls; %s", s.pollMaxAttempts, creditAdvisory))
}

// WaitForPolls blocks until all in-flight polling goroutines have finished.
// Used for graceful shutdown and deterministic tests.
func (s *GenerationService) WaitForPolls() {
	s.polls.Wait()
}

// ListRequests enforces retention before reading, so a caller never sees a
// COMPLETED request past its expiry. Empty userID lists all requests.
func (s *GenerationService) ListRequests(ctx context.Context, userID string) ([]models.GenerationRequest, error) {
	if _, err := s.retention.Sweep(ctx, time.Now().UTC()); err != nil {
		// Reads stay available even when a sweep hiccups.
		s.log.Error("retention sweep failed", "err", err)
	}
	if userID == "" {
		return s.requests.List(ctx)
	}
	return s.requests.ListByUser(ctx, userID)
}

func (s *GenerationService) GetRequest(ctx context.Context, id string) (*models.GenerationRequest, error) {
	return s.requests.Get(ctx, id)
}

func (s *GenerationService) markFailed(ctx context.Context, req *models.GenerationRequest, reason string) {
	s.transition(ctx, req, models.StatusFailed, "", reason)
}

func (s *GenerationService) markFailedByID(ctx context.Context, requestID, reason string) {
	s.transitionByID(ctx, requestID, models.StatusFailed, "", reason)
}

// transition persists a status change and mirrors it onto the in-memory
// request handed back to the caller.
func (s *GenerationService) transition(ctx context.Context, req *models.GenerationRequest, status models.RequestStatus, outputURL, detail string) {
	s.transitionByID(ctx, req.ID, status, outputURL, detail)
	req.Status = status
	req.OutputURL = outputURL
	req.FailureReason = detail
}

func (s *GenerationService) transitionByID(ctx context.Context, requestID string, status models.RequestStatus, outputURL, detail string) {
	err := s.requests.UpdateStatus(ctx, requestID, status, outputURL, detail)
	if err == nil {
		return
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		// Must never be reachable by normal flow.
		s.log.Error("status invariant violation", "request_id", requestID, "target", status, "err", err)
		return
	}
	s.log.Error("status update failed", "request_id", requestID, "target", status, "err", err)
}
