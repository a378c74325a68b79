package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/config"
	"github.com/JakeFAU/progress-eta/internal/metrics"
	"github.com/JakeFAU/progress-eta/internal/store"
	"github.com/JakeFAU/progress-eta/internal/tracker"
)

const defaultRequestTimeout = 30 * time.Second

// Tracker is the live series registry the handlers drive.
type Tracker interface {
	Start(ctx context.Context, req tracker.StartRequest) (tracker.Info, error)
	Observe(ctx context.Context, id uuid.UUID, count int64) (tracker.Observation, error)
	Abandon(ctx context.Context, id uuid.UUID) (tracker.Info, error)
	Get(id uuid.UUID) (tracker.Info, error)
	List(status *tracker.Status) []tracker.Info
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. Only Tracker is required.
type Options struct {
	Tracker Tracker
	// History serves /v1/history; nil answers 503.
	History store.SeriesRepository
	// Ready is consulted by /readyz.
	Ready []Pinger
	// HTTPMetrics records request metrics when set.
	HTTPMetrics *metrics.HTTP
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	// ObservationLimiter throttles observations per series when set.
	ObservationLimiter Limiter
	Auth               config.AuthConfig
	RequestTimeout     time.Duration
	Logger             *zap.Logger
}

// Server wires HTTP handlers to the tracker and history store.
type Server struct {
	router  chi.Router
	tracker Tracker
	ready   []Pinger
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		tracker: opts.Tracker,
		ready:   opts.Ready,
		logger:  logger.Named("api"),
	}
	history := NewHistoryHandler(opts.History, s.logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	if opts.HTTPMetrics != nil {
		r.Use(opts.HTTPMetrics.Middleware)
	}
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if opts.Auth.Enabled {
			r.Use(apiKeyMiddleware(opts.Auth.APIKey, s.logger))
		}
		r.Route("/series", func(r chi.Router) {
			r.Post("/", s.startSeries)
			r.Get("/", s.listSeries)
			r.Route("/{series_id}", func(r chi.Router) {
				r.Get("/", s.getSeries)
				r.Delete("/", s.abandonSeries)
				// An observation that outlives the request timeout may still be
				// applied, so retrying after a 503 can record the count twice.
				if opts.ObservationLimiter != nil {
					r.With(rateLimitMiddleware(opts.ObservationLimiter, "series_id", s.logger)).Post("/observations", s.observe)
				} else {
					r.Post("/observations", s.observe)
				}
			})
		})
		r.Route("/history/series", func(r chi.Router) {
			r.Get("/", history.ListSeries)
			r.Get("/{series_id}", history.GetSeries)
			r.Get("/{series_id}/snapshots", history.ListSnapshots)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(s.logger, w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
