package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aetherlabs/aether-backend/internal/models"
	"github.com/aetherlabs/aether-backend/internal/service"
)

type Server struct {
	addr        string
	username    string
	password    string
	log         *slog.Logger
	users       *service.UserService
	generations *service.GenerationService
	catalog     *service.ModelService
	appConfig   *service.ConfigService
	router      *chi.Mux
}

func NewServer(
	addr, username, password string,
	log *slog.Logger,
	users *service.UserService,
	generations *service.GenerationService,
	catalog *service.ModelService,
	appConfig *service.ConfigService,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:        addr,
		username:    username,
		password:    password,
		log:         log,
		users:       users,
		generations: generations,
		catalog:     catalog,
		appConfig:   appConfig,
		router:      r,
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/generations", s.handleSubmitGeneration)
		r.Get("/generations", s.handleListGenerations)
		r.Get("/generations/{id}", s.handleGetGeneration)
		r.Get("/users/{id}/balance", s.handleGetBalance)
		r.Get("/models", s.handleListActiveModels)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Route("/admin", func(r chi.Router) {
			r.Get("/users", s.handleListUsers)
			r.Put("/users/{id}/credits", s.handleSetCredits)
			r.Post("/users/{id}/credits", s.handleAddCredits)
			r.Get("/config", s.handleGetConfig)
			r.Put("/config", s.handleUpdateConfig)
			r.Get("/generations", s.handleListAllGenerations)
			r.Route("/models", func(r chi.Router) {
				r.Get("/", s.handleListModels)
				r.Post("/", s.handleCreateModel)
				r.Put("/{id}", s.handleUpdateModel)
				r.Delete("/{id}", s.handleDeleteModel)
			})
		})
	})

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

type submitRequest struct {
	UserID      string   `json:"user_id"`
	Prompt      string   `json:"prompt"`
	MediaType   string   `json:"media_type"`
	ModelID     string   `json:"model_id"`
	Duration    *int     `json:"duration"`
	CfgScale    *float64 `json:"cfg_scale"`
	SourceImage string   `json:"source_image"`
}

// generationResponse is the external view of a request. The provider task id
// stays internal.
type generationResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Prompt        string    `json:"prompt"`
	MediaType     string    `json:"media_type"`
	ModelID       string    `json:"model_id"`
	CostCredits   int       `json:"cost_credits"`
	Duration      int       `json:"duration,omitempty"`
	CfgScale      float64   `json:"cfg_scale,omitempty"`
	Status        string    `json:"status"`
	OutputURL     string    `json:"output_url,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func toGenerationResponse(req models.GenerationRequest) generationResponse {
	return generationResponse{
		ID:            req.ID,
		UserID:        req.UserID,
		Prompt:        req.Prompt,
		MediaType:     string(req.MediaType),
		ModelID:       req.ModelID,
		CostCredits:   req.CostCredits,
		Duration:      req.Duration,
		CfgScale:      req.CfgScale,
		Status:        string(req.Status),
		OutputURL:     req.OutputURL,
		FailureReason: req.FailureReason,
		CreatedAt:     req.CreatedAt,
		ExpiresAt:     req.ExpiresAt,
	}
}

func (s *Server) handleSubmitGeneration(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ModelID == "" {
		http.Error(w, "user_id and model_id required", http.StatusBadRequest)
		return
	}

	result, err := s.generations.Submit(r.Context(), service.SubmitInput{
		UserID:      req.UserID,
		Prompt:      req.Prompt,
		MediaType:   models.MediaType(strings.ToUpper(req.MediaType)),
		ModelID:     req.ModelID,
		Duration:    req.Duration,
		CfgScale:    req.CfgScale,
		SourceImage: req.SourceImage,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toGenerationResponse(*result))
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	requests, err := s.generations.ListRequests(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]generationResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toGenerationResponse(req))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListAllGenerations(w http.ResponseWriter, r *http.Request) {
	filter := models.RequestStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if filter != "" && !filter.Valid() {
		http.Error(w, fmt.Sprintf("unknown status %q", filter), http.StatusBadRequest)
		return
	}

	requests, err := s.generations.ListRequests(r.Context(), "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]generationResponse, 0, len(requests))
	for _, req := range requests {
		if filter != "" && req.Status != filter {
			continue
		}
		out = append(out, toGenerationResponse(req))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	req, err := s.generations.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toGenerationResponse(*req))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.users.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

type setCreditsRequest struct {
	Credits int `json:"credits"`
}

func (s *Server) handleSetCredits(w http.ResponseWriter, r *http.Request) {
	var req setCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.users.SetCredits(r.Context(), id, req.Credits); err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.users.Balance(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

// handleAddCredits tops up a balance instead of overwriting it, for manual
// reconciliation of failed generations.
func (s *Server) handleAddCredits(w http.ResponseWriter, r *http.Request) {
	var req setCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.users.AddCredits(r.Context(), id, req.Credits); err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.users.Balance(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

type configPayload struct {
	RetentionDays int `json:"retention_days"`
	CostPerImage  int `json:"cost_per_image"`
	CostPerVideo  int `json:"cost_per_video"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.appConfig.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, configPayload{
		RetentionDays: cfg.RetentionDays,
		CostPerImage:  cfg.CostPerImage,
		CostPerVideo:  cfg.CostPerVideo,
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cfg := models.AppConfig{
		RetentionDays: req.RetentionDays,
		CostPerImage:  req.CostPerImage,
		CostPerVideo:  req.CostPerVideo,
	}
	if err := s.appConfig.Update(r.Context(), cfg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

type modelPayload struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	CostPerGeneration    int     `json:"cost_per_generation"`
	MaxDuration          int     `json:"max_duration"`
	DefaultDuration      int     `json:"default_duration"`
	DefaultCfgScale      float64 `json:"default_cfg_scale"`
	SupportsImageToVideo bool    `json:"supports_image_to_video"`
	SupportsTextToVideo  bool    `json:"supports_text_to_video"`
	IsActive             bool    `json:"is_active"`
}

func (p modelPayload) toModel() models.AIModel {
	return models.AIModel{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          p.Description,
		CostPerGeneration:    p.CostPerGeneration,
		MaxDuration:          p.MaxDuration,
		DefaultDuration:      p.DefaultDuration,
		DefaultCfgScale:      p.DefaultCfgScale,
		SupportsImageToVideo: p.SupportsImageToVideo,
		SupportsTextToVideo:  p.SupportsTextToVideo,
		IsActive:             p.IsActive,
	}
}

func (s *Server) handleListActiveModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.ListActive(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req modelPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	m := req.toModel()
	if err := s.catalog.Create(r.Context(), &m); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	var req modelPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.ID = chi.URLParam(r, "id")
	m := req.toModel()
	if err := s.catalog.Update(r.Context(), &m); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="aether"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses. Anything unmapped is an
// internal error and is logged rather than leaked.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrModelNotFound),
		errors.Is(err, models.ErrRequestNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInsufficientCredits):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrEmptyPrompt),
		errors.Is(err, models.ErrModelInactive),
		errors.Is(err, models.ErrUnsupportedCapability),
		errors.Is(err, models.ErrDurationExceeded):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("api handler error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
