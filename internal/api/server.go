package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/auth"
	"github.com/JakeFAU/cache-warmer/internal/metrics"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// Actions accepted by the token endpoint and bound into action tokens.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionStatus = "status"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxBodyBytes          = 1 << 16
)

// WarmController is the subset of *warmer.Controller the handlers need.
type WarmController interface {
	Start(ctx context.Context, req warmer.StartRequest) (warmer.Run, error)
	Stop(ctx context.Context) (warmer.Run, error)
	Status(ctx context.Context) (warmer.Report, error)
	Reconcile(ctx context.Context) error
}

// Options tunes the server.
type Options struct {
	RequestTimeout time.Duration
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the warm controller.
type Server struct {
	router     chi.Router
	controller WarmController
	guard      *auth.Guard
	ready      func(ctx context.Context) error
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(controller WarmController, guard *auth.Guard, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if guard == nil {
		guard, _ = auth.NewGuard(auth.Config{}, nil)
	}
	s := &Server{
		controller: controller,
		guard:      guard,
		ready:      opts.Ready,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/warm", func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)
		r.Get("/token", s.issueToken)
		r.With(s.tokenMiddleware(ActionStart)).Post("/start", s.start)
		r.With(s.tokenMiddleware(ActionStop)).Post("/stop", s.stop)
		r.With(s.tokenMiddleware(ActionStatus)).Get("/status", s.status)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	switch action {
	case ActionStart, ActionStop, ActionStatus:
	default:
		writeError(w, http.StatusBadRequest, "action must be one of start, stop, status")
		return
	}
	token, err := s.guard.Token(action)
	if err != nil {
		s.logger.Error("issue token failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Action: action, Token: token})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req warmer.StartRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	run, err := s.controller.Start(r.Context(), req)
	if err != nil {
		s.writeControllerError(w, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{OK: true, RunID: run.State.RunID, Config: run.Config})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if _, err := s.controller.Stop(r.Context()); err != nil {
		s.writeControllerError(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// status reports progress and then clears a stale scheduled flag left by a
// finished run. The report is computed before reconciling.
func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	report, err := s.controller.Status(r.Context())
	if err != nil {
		s.writeControllerError(w, "status", err)
		return
	}
	if err := s.controller.Reconcile(r.Context()); err != nil {
		s.logger.Warn("reconcile run state", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeControllerError(w http.ResponseWriter, op string, err error) {
	var cfgErr *warmer.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, cfgErr.Error())
	case errors.Is(err, warmer.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("warm command failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.guard.Authorize(r.Header.Get(auth.HeaderAPIKey)); err != nil {
			writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenMiddleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.guard.Verify(action, r.Header.Get(auth.HeaderToken)); err != nil {
				writeError(w, http.StatusForbidden, auth.ErrInvalidToken.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type tokenResponse struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type startResponse struct {
	OK     bool             `json:"ok"`
	RunID  string           `json:"run_id"`
	Config warmer.RunConfig `json:"config"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
