package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Leagues is the league state surface the API exposes.
type Leagues interface {
	Put(ctx context.Context, league *domain.League) error
	Get(ctx context.Context, leagueID string) (*domain.League, error)
	AppendHistory(ctx context.Context, leagueID string, proposal domain.TradeProposal, result domain.TradeEvaluation) (domain.MemorySummary, error)
	GetMemory(ctx context.Context, leagueID string) (domain.MemorySummary, error)
}

// Workflows is the workflow control surface the API exposes.
type Workflows interface {
	Submit(ctx context.Context, in domain.EvaluateTradeInput) (domain.WorkflowSnapshot, error)
	Status(ctx context.Context, id string) (domain.WorkflowSnapshot, error)
}

// Streams hands out per-workflow subscriptions and accepts payloads for them.
type Streams interface {
	Connect(id string) *stream.Subscription
	Emit(id string, payload []byte) bool
}

// Server holds the collaborators behind the HTTP API.
type Server struct {
	leagues   Leagues
	workflows Workflows
	streams   Streams

	logger      *slog.Logger
	keepAlive   time.Duration
	origins     []string
	metrics     http.Handler
	onEmit      func(delivered bool)
	readyChecks []func(context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithKeepAlive sets the stream keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithCORSOrigins sets the allowed origins. "*" allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithEmitObserver is called after every POST /api/stream/emit.
func WithEmitObserver(fn func(delivered bool)) Option {
	return func(s *Server) { s.onEmit = fn }
}

// WithReadyCheck adds a probe consulted by /health.
func WithReadyCheck(fn func(context.Context) error) Option {
	return func(s *Server) { s.readyChecks = append(s.readyChecks, fn) }
}

// NewHandler builds the API router.
func NewHandler(leagues Leagues, workflows Workflows, streams Streams, opts ...Option) http.Handler {
	s := &Server{
		leagues:   leagues,
		workflows: workflows,
		streams:   streams,
		logger:    logging.NewNop(),
		keepAlive: stream.DefaultKeepAlive,
		origins:   []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.origins))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/leagues/{leagueID}", func(r chi.Router) {
			r.Put("/state", s.putState)
			r.Get("/state", s.getState)
			r.Post("/history", s.appendHistory)
			r.Get("/memory", s.getMemory)
		})

		r.Post("/league/init", s.initLeague)
		r.Get("/memory/get", s.getMemoryByQuery)

		r.Post("/trade/evaluate", s.evaluate)
		r.Get("/trade/status", s.status)

		r.Get("/stream", s.streamSSE)
		r.Get("/stream/ws", s.streamWS)
		r.Post("/stream/emit", s.emit)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.readyChecks {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func cors(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == "*" || (origin != "" && o == origin) {
					if o == "*" {
						w.Header().Set("Access-Control-Allow-Origin", "*")
					} else {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
					}
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					break
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWorkflowExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}

func requireParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	return v, nil
}
