package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aetherlabs/aether-backend/internal/models"
)

// RetentionService expires COMPLETED requests past their retention deadline.
// It runs on every request-list read and, additionally, on a fixed schedule.
type RetentionService struct {
	log      *slog.Logger
	requests RequestStore
	media    MediaStore
}

func NewRetentionService(log *slog.Logger, requests RequestStore, media MediaStore) *RetentionService {
	return &RetentionService{log: log, requests: requests, media: media}
}

// Sweep transitions every COMPLETED request with expiresAt < now to EXPIRED,
// clears its output URL and deletes the stored media object. Idempotent and
// one-way; requests in any other status are never touched. Returns the
// number of requests expired by this call.
func (s *RetentionService) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.requests.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired requests: %w", err)
	}

	count := 0
	for _, req := range expired {
		err := s.requests.UpdateStatus(ctx, req.ID, models.StatusExpired, "", "")
		if errors.Is(err, models.ErrInvalidTransition) {
			// A concurrent sweep got there first; already expired.
			continue
		}
		if err != nil {
			s.log.Error("expire request failed", "request_id", req.ID, "err", err)
			continue
		}
		count++

		if req.OutputURL != "" {
			if err := s.media.Remove(ctx, req.OutputURL); err != nil {
				// The row is already EXPIRED and unreachable; the orphan
				// object is logged for manual cleanup.
				s.log.Warn("delete expired media failed", "request_id", req.ID, "url", req.OutputURL, "err", err)
			}
		}
		s.log.Info("request expired", "request_id", req.ID, "expired_at", req.ExpiresAt)
	}
	return count, nil
}

// StartSchedule runs Sweep at the given interval until the context is done.
func (s *RetentionService) StartSchedule(ctx context.Context, interval time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if n, err := s.Sweep(sweepCtx, time.Now().UTC()); err != nil {
			s.log.Error("scheduled sweep failed", "err", err)
		} else if n > 0 {
			s.log.Info("scheduled sweep expired requests", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule retention sweep: %w", err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}
