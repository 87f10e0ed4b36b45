// Package server exposes seeded farms over a small read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/sink"
)

// MaxRadiusKm bounds search requests.
const MaxRadiusKm = 500.0

const shutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithRateLimit caps requests per second across all clients. Zero disables
// the limit.
func WithRateLimit(rps float64) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(math.Ceil(rps*2))))
	}
}

// Server serves health probes and radius search over a sink.
type Server struct {
	sink    sink.Sink
	origins []string
	limiter *rate.Limiter
	started time.Time
	log     *zap.Logger
}

// New creates a Server over an open sink.
func New(s sink.Sink, opts ...Option) *Server {
	srv := &Server{
		sink:    s,
		started: time.Now(),
		log:     zap.L().With(zap.String("component", "server")),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/farms/search", s.handleSearch)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return eris.Wrapf(err, "server: listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("starting server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server: shutdown")
	})
	return g.Wait()
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "up",
		"uptime_secs": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.sink.Ping(ctx); err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	RadiusInKm *float64 `json:"radiusInKm"`
	Limit      int      `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	searcher, ok := s.sink.(sink.Searcher)
	if !ok {
		writeError(w, http.StatusNotImplemented, "search is not supported by this sink")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil || req.RadiusInKm == nil {
		writeError(w, http.StatusBadRequest, "lat, lng and radiusInKm are required")
		return
	}
	center := geo.Point{Lat: *req.Lat, Lon: *req.Lng}
	if err := center.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}
	radius := *req.RadiusInKm
	if math.IsNaN(radius) || radius <= 0 || radius > MaxRadiusKm {
		writeError(w, http.StatusBadRequest, "radiusInKm must be greater than 0 and at most 500")
		return
	}
	if req.Limit < 0 || req.Limit > sink.DefaultSearchLimit {
		req.Limit = sink.DefaultSearchLimit
	}

	hits, err := searcher.Search(r.Context(), center, radius, req.Limit)
	if err != nil {
		s.log.Error("farm search failed", zap.Stringer("center", center), zap.Float64("radius_km", radius), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to search farms")
		return
	}
	if hits == nil {
		hits = []sink.Hit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
