package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlabs/aether-backend/internal/freepik"
	"github.com/aetherlabs/aether-backend/internal/models"
	"github.com/aetherlabs/aether-backend/internal/service"
	"github.com/aetherlabs/aether-backend/internal/testutil"
)

const (
	adminUser = "admin"
	adminPass = "secret"
)

type testEnv struct {
	server   *Server
	users    *testutil.MemoryUserStore
	requests *testutil.MemoryRequestStore
	provider *testutil.FakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := testutil.NewMemoryUserStore(
		models.User{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin, Credits: 99999},
		models.User{ID: "user-1", Email: "user@example.com", Role: models.RoleUser, Credits: 10},
	)
	requests := testutil.NewMemoryRequestStore()
	catalog := testutil.NewMemoryModelStore(
		models.AIModel{
			ID: "kling-v2-5-pro", Name: "Kling v2.5 Pro", CostPerGeneration: 5,
			MaxDuration: 10, DefaultDuration: 5, DefaultCfgScale: 0.5,
			SupportsImageToVideo: true, SupportsTextToVideo: true, IsActive: true,
		},
		models.AIModel{ID: "retired-model", Name: "Retired", CostPerGeneration: 1, IsActive: false},
	)
	appConfig := testutil.NewMemoryConfigStore(models.AppConfig{RetentionDays: 7, CostPerImage: 1, CostPerVideo: 5})
	provider := &testutil.FakeProvider{
		SubmitImageFunc: func(context.Context, string) (*freepik.Media, error) {
			return &freepik.Media{URL: "https://provider.example.com/img.png"}, nil
		},
	}
	media := &testutil.FakeMediaStore{}

	retention := service.NewRetentionService(log, requests, media)
	generations := service.NewGenerationService(
		log, users, requests, catalog, appConfig,
		provider, media, retention,
		time.Millisecond, 30,
	)

	server := NewServer(
		":0", adminUser, adminPass, log,
		service.NewUserService(users),
		generations,
		service.NewModelService(catalog),
		service.NewConfigService(appConfig),
	)
	return &testEnv{server: server, users: users, requests: requests, provider: provider}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if admin {
		req.SetBasicAuth(adminUser, adminPass)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestSubmitGenerationCreated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/generations", map[string]any{
		"user_id":    "user-1",
		"prompt":     "a lighthouse in a storm",
		"media_type": "image",
		"model_id":   "kling-v2-5-pro",
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "COMPLETED", resp["status"])
	assert.Equal(t, float64(5), resp["cost_credits"])
	assert.NotEmpty(t, resp["output_url"])
	assert.NotContains(t, resp, "provider_task_id")

	balance := env.do(t, http.MethodGet, "/api/users/user-1/balance", nil, false)
	require.Equal(t, http.StatusOK, balance.Code)
	assert.Equal(t, 5, decodeJSON[map[string]int](t, balance)["credits"])
}

func TestSubmitGenerationInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.users.SetCredits(context.Background(), "user-1", 2))

	rec := env.do(t, http.MethodPost, "/api/generations", map[string]any{
		"user_id":    "user-1",
		"prompt":     "too expensive",
		"media_type": "image",
		"model_id":   "kling-v2-5-pro",
	}, false)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestSubmitGenerationValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"missing user", map[string]any{"prompt": "x", "media_type": "image", "model_id": "kling-v2-5-pro"}, http.StatusBadRequest},
		{"empty prompt", map[string]any{"user_id": "user-1", "prompt": " ", "media_type": "image", "model_id": "kling-v2-5-pro"}, http.StatusBadRequest},
		{"unknown model", map[string]any{"user_id": "user-1", "prompt": "x", "media_type": "image", "model_id": "nope"}, http.StatusNotFound},
		{"inactive model", map[string]any{"user_id": "user-1", "prompt": "x", "media_type": "image", "model_id": "retired-model"}, http.StatusBadRequest},
		{"bad media type", map[string]any{"user_id": "user-1", "prompt": "x", "media_type": "audio", "model_id": "kling-v2-5-pro"}, http.StatusBadRequest},
		{"duration exceeded", map[string]any{"user_id": "user-1", "prompt": "x", "media_type": "video", "model_id": "kling-v2-5-pro", "duration": 11}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/generations", tc.body, false)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestGetGeneration(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/api/generations", map[string]any{
		"user_id":    "user-1",
		"prompt":     "a lighthouse",
		"media_type": "image",
		"model_id":   "kling-v2-5-pro",
	}, false)
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodeJSON[map[string]any](t, created)["id"].(string)

	rec := env.do(t, http.MethodGet, "/api/generations/"+id, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeJSON[map[string]any](t, rec)["id"])

	missing := env.do(t, http.MethodGet, "/api/generations/no-such-id", nil, false)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestListGenerationsRequiresUserID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/generations", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/generations?user_id=user-1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]map[string]any](t, rec))
}

func TestListActiveModelsHidesInactive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/models", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]models.AIModel](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "kling-v2-5-pro", list[0].ID)
}

func TestAdminRequiresBasicAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/admin/users", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	wrong := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	wrong.SetBasicAuth(adminUser, "wrong")
	wrongRec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(wrongRec, wrong)
	assert.Equal(t, http.StatusUnauthorized, wrongRec.Code)

	ok := env.do(t, http.MethodGet, "/admin/users", nil, true)
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Len(t, decodeJSON[[]models.User](t, ok), 2)
}

func TestAdminSetCredits(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/admin/users/user-1/credits", map[string]int{"credits": 42}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 42, decodeJSON[map[string]int](t, rec)["credits"])

	negative := env.do(t, http.MethodPut, "/admin/users/user-1/credits", map[string]int{"credits": -1}, true)
	assert.Equal(t, http.StatusBadRequest, negative.Code)

	missing := env.do(t, http.MethodPut, "/admin/users/ghost/credits", map[string]int{"credits": 5}, true)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAdminAddCredits(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/users/user-1/credits", map[string]int{"credits": 5}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, decodeJSON[map[string]int](t, rec)["credits"], "top-up adds to the existing balance")

	zero := env.do(t, http.MethodPost, "/admin/users/user-1/credits", map[string]int{"credits": 0}, true)
	assert.Equal(t, http.StatusBadRequest, zero.Code)

	missing := env.do(t, http.MethodPost, "/admin/users/ghost/credits", map[string]int{"credits": 5}, true)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAdminConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/admin/config", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeJSON[map[string]int](t, rec)
	assert.Equal(t, 7, cfg["retention_days"])
	assert.Equal(t, 1, cfg["cost_per_image"])
	assert.Equal(t, 5, cfg["cost_per_video"])

	update := env.do(t, http.MethodPut, "/admin/config", map[string]int{
		"retention_days": 14, "cost_per_image": 2, "cost_per_video": 8,
	}, true)
	require.Equal(t, http.StatusOK, update.Code)

	rec = env.do(t, http.MethodGet, "/admin/config", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, decodeJSON[map[string]int](t, rec)["retention_days"])

	invalid := env.do(t, http.MethodPut, "/admin/config", map[string]int{
		"retention_days": 0, "cost_per_image": 1, "cost_per_video": 5,
	}, true)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestAdminModelLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/admin/models/", map[string]any{
		"id": "new-model", "name": "New Model", "cost_per_generation": 3,
		"max_duration": 10, "default_duration": 5, "default_cfg_scale": 0.5,
		"supports_text_to_video": true, "is_active": true,
	}, true)
	require.Equal(t, http.StatusCreated, created.Code)

	updated := env.do(t, http.MethodPut, "/admin/models/new-model", map[string]any{
		"name": "Renamed", "cost_per_generation": 4,
		"max_duration": 10, "default_duration": 5, "default_cfg_scale": 0.5,
		"supports_text_to_video": true, "is_active": false,
	}, true)
	require.Equal(t, http.StatusOK, updated.Code)

	list := env.do(t, http.MethodGet, "/admin/models/", nil, true)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeJSON[[]models.AIModel](t, list), 3)

	deleted := env.do(t, http.MethodDelete, "/admin/models/new-model", nil, true)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	list = env.do(t, http.MethodGet, "/admin/models/", nil, true)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeJSON[[]models.AIModel](t, list), 2)
}

func TestAdminListAllGenerations(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/api/generations", map[string]any{
		"user_id":    "user-1",
		"prompt":     "a lighthouse",
		"media_type": "image",
		"model_id":   "kling-v2-5-pro",
	}, false)
	require.Equal(t, http.StatusCreated, created.Code)

	rec := env.do(t, http.MethodGet, "/admin/generations", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]map[string]any](t, rec), 1)
}

func TestAdminListGenerationsStatusFilter(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/api/generations", map[string]any{
		"user_id":    "user-1",
		"prompt":     "a lighthouse",
		"media_type": "image",
		"model_id":   "kling-v2-5-pro",
	}, false)
	require.Equal(t, http.StatusCreated, created.Code)

	completed := env.do(t, http.MethodGet, "/admin/generations?status=completed", nil, true)
	require.Equal(t, http.StatusOK, completed.Code)
	assert.Len(t, decodeJSON[[]map[string]any](t, completed), 1)

	failed := env.do(t, http.MethodGet, "/admin/generations?status=FAILED", nil, true)
	require.Equal(t, http.StatusOK, failed.Code)
	assert.Empty(t, decodeJSON[[]map[string]any](t, failed))

	unknown := env.do(t, http.MethodGet, "/admin/generations?status=RUNNING", nil, true)
	assert.Equal(t, http.StatusBadRequest, unknown.Code)
}
