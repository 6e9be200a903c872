// Package server exposes the coordination core over HTTP: starting
// executions (synchronously or queued), inspecting their state and reasoning
// chain, and cancelling active runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/dispatch"
	"github.com/hupe1980/defimesh/logging"
)

// Runner starts, enqueues and cancels executions. The root mesh type
// implements it.
type Runner interface {
	// StartExecution runs a request to completion and returns the final state.
	StartExecution(ctx context.Context, req dispatch.Request) (*core.ExecutionState, error)

	// EnqueueExecution persists a new execution and queues its id, returning
	// the id immediately.
	EnqueueExecution(ctx context.Context, req dispatch.Request) (string, error)

	// CancelExecution stops an active run. It reports whether the id was
	// active.
	CancelExecution(executionID string) bool
}

// StateReader serves execution lookups. Any core.Store satisfies it.
type StateReader interface {
	GetExecution(ctx context.Context, executionID string) (*core.ExecutionRecord, error)
}

// Options configures the HTTP server.
type Options struct {
	// Addr is the listen address.
	Addr string

	// AllowedOrigins configures CORS.
	AllowedOrigins []string

	// RequestTimeout bounds each request.
	RequestTimeout time.Duration

	Logger logging.Logger
}

// Server is the HTTP intake surface of the mesh.
type Server struct {
	router *chi.Mux
	server *http.Server
	runner Runner
	store  StateReader
	logger logging.Logger
}

// New creates the server and mounts its routes.
func New(runner Runner, store StateReader, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		RequestTimeout: 60 * time.Second,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		router: chi.NewRouter(),
		runner: runner,
		store:  store,
		logger: opts.Logger,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(opts.RequestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/executions", s.handleStartExecution)
		r.Get("/executions/{id}", s.handleGetExecution)
		r.Get("/executions/{id}/reasoning", s.handleGetReasoning)
		r.Post("/executions/{id}/cancel", s.handleCancelExecution)
	})

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: opts.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the mounted router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")

	return s.server.Shutdown(ctx)
}

type startResponse struct {
	ExecutionID string               `json:"execution_id"`
	Status      string               `json:"status"`
	State       *core.ExecutionState `json:"state,omitempty"`
}

func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserInput == "" {
		s.writeError(w, http.StatusBadRequest, "user_input is required")
		return
	}

	if r.URL.Query().Get("async") == "true" {
		executionID, err := s.runner.EnqueueExecution(r.Context(), req)
		if err != nil {
			s.logger.Error("enqueue failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to enqueue execution")

			return
		}

		s.writeJSON(w, http.StatusAccepted, startResponse{
			ExecutionID: executionID,
			Status:      "queued",
		})

		return
	}

	state, err := s.runner.StartExecution(r.Context(), req)
	if err != nil {
		s.logger.Error("execution failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "execution failed")

		return
	}

	status := core.StatusCompleted
	if len(state.ErrorMessages) > 0 {
		status = core.StatusFailed
	}

	s.writeJSON(w, http.StatusOK, startResponse{
		ExecutionID: state.ExecutionID,
		Status:      status,
		State:       state,
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")

	rec, err := s.store.GetExecution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "execution not found")
			return
		}

		s.logger.Error("execution lookup failed", "execution_id", executionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load execution")

		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

type reasoningResponse struct {
	ExecutionID string   `json:"execution_id"`
	Status      string   `json:"status"`
	Reasoning   []string `json:"reasoning"`
}

func (s *Server) handleGetReasoning(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")

	rec, err := s.store.GetExecution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "execution not found")
			return
		}

		s.logger.Error("execution lookup failed", "execution_id", executionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load execution")

		return
	}

	resp := reasoningResponse{
		ExecutionID: rec.ExecutionID,
		Status:      rec.Status,
		Reasoning:   []string{},
	}
	if rec.State != nil {
		resp.Reasoning = rec.State.AgentReasoning
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")

	if !s.runner.CancelExecution(executionID) {
		s.writeError(w, http.StatusNotFound, "execution is not active")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"execution_id": executionID,
		"status":       "cancelling",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
