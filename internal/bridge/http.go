package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"autokudo/internal/domain"
	"autokudo/internal/service"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type StatusReader interface {
	Text() string
	TriggerVisible() bool
}

type RunLister interface {
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

type StatusResponse struct {
	State          string          `json:"state"`
	Status         string          `json:"status"`
	TriggerVisible bool            `json:"trigger_visible"`
	Settings       domain.Settings `json:"settings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the controller over HTTP.
type Server struct {
	controller Controller
	applier    *Applier
	status     StatusReader
	runs       RunLister
	logger     *slog.Logger
	router     chi.Router
}

// NewServer creates the API server. runs may be nil.
func NewServer(controller Controller, applier *Applier, status StatusReader, runs RunLister, logger *slog.Logger) *Server {
	s := &Server{
		controller: controller,
		applier:    applier,
		status:     status,
		runs:       runs,
		logger:     logger.With("component", "http"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/run", s.handleRun)
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleRuns)
	})

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var form domain.SettingsForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid settings form")
		return
	}

	applied, err := s.applier.Apply(r.Context(), form, "http")
	if err != nil {
		s.logger.Error("apply settings failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	depth := s.controller.Settings().FeedSearchDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < domain.MinFeedSearchDepth || v > domain.MaxFeedSearchDepth {
			s.writeError(w, http.StatusBadRequest, "depth must be between 1 and 15")
			return
		}
		depth = v
	}

	summary, err := s.controller.RunDepth(r.Context(), depth)
	switch {
	case errors.Is(err, service.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{
		State:          s.controller.State().String(),
		Status:         s.status.Text(),
		TriggerVisible: s.status.TriggerVisible(),
		Settings:       s.controller.Settings(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(v, maxRunsLimit)
	}

	runs := []domain.RunRecord{}
	if s.runs != nil {
		recent, err := s.runs.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("list runs failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		if recent != nil {
			runs = recent
		}
	}

	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
