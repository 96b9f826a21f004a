package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlabs/aether-backend/internal/models"
	"github.com/aetherlabs/aether-backend/internal/testutil"
)

func seedRequest(store *testutil.MemoryRequestStore, id string, status models.RequestStatus, outputURL string, expiresAt time.Time) {
	store.Seed(models.GenerationRequest{
		ID:          id,
		UserID:      "user-1",
		Prompt:      "prompt",
		MediaType:   models.MediaImage,
		ModelID:     "kling-v2-5-pro",
		CostCredits: 1,
		Status:      status,
		OutputURL:   outputURL,
		CreatedAt:   expiresAt.AddDate(0, 0, -7),
		ExpiresAt:   expiresAt,
	})
}

func TestSweepExpiresCompletedRequests(t *testing.T) {
	requests := testutil.NewMemoryRequestStore()
	media := &testutil.FakeMediaStore{}
	svc := NewRetentionService(discardLogger(), requests, media)

	now := time.Now().UTC()
	seedRequest(requests, "old-completed", models.StatusCompleted, "https://media.example.com/outputs/old-completed", now.Add(-time.Hour))
	seedRequest(requests, "fresh-completed", models.StatusCompleted, "https://media.example.com/outputs/fresh-completed", now.Add(time.Hour))
	seedRequest(requests, "old-failed", models.StatusFailed, "", now.Add(-time.Hour))
	seedRequest(requests, "old-processing", models.StatusProcessing, "", now.Add(-time.Hour))

	count, err := svc.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := requests.Get(context.Background(), "old-completed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Status)
	assert.Empty(t, expired.OutputURL, "expiry clears the output url")
	assert.Equal(t, []string{"https://media.example.com/outputs/old-completed"}, media.Removed)

	// Everything else is untouched.
	fresh, err := requests.Get(context.Background(), "fresh-completed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, fresh.Status)
	assert.NotEmpty(t, fresh.OutputURL)

	failed, err := requests.Get(context.Background(), "old-failed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)

	processing, err := requests.Get(context.Background(), "old-processing")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, processing.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	requests := testutil.NewMemoryRequestStore()
	media := &testutil.FakeMediaStore{}
	svc := NewRetentionService(discardLogger(), requests, media)

	now := time.Now().UTC()
	seedRequest(requests, "old-completed", models.StatusCompleted, "https://media.example.com/outputs/old-completed", now.Add(-time.Hour))

	count, err := svc.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "second sweep finds nothing to expire")
	assert.Len(t, media.Removed, 1)
}

func TestSweepSurvivesMediaRemovalErrors(t *testing.T) {
	requests := testutil.NewMemoryRequestStore()
	media := &testutil.FakeMediaStore{RemoveErr: context.DeadlineExceeded}
	svc := NewRetentionService(discardLogger(), requests, media)

	now := time.Now().UTC()
	seedRequest(requests, "a", models.StatusCompleted, "https://media.example.com/outputs/a", now.Add(-2*time.Hour))
	seedRequest(requests, "b", models.StatusCompleted, "https://media.example.com/outputs/b", now.Add(-time.Hour))

	count, err := svc.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "object deletion failure does not block expiry")

	for _, id := range []string{"a", "b"} {
		req, err := requests.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusExpired, req.Status)
	}
}

func TestListRequestsSweepsBeforeReading(t *testing.T) {
	f := newFixture(t, 10)

	now := time.Now().UTC()
	seedRequest(f.requests, "stale", models.StatusCompleted, "https://media.example.com/outputs/stale", now.Add(-time.Minute))

	list, err := f.svc.ListRequests(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusExpired, list[0].Status)
	assert.Empty(t, list[0].OutputURL)
}
