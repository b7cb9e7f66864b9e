// Package server exposes the latest snapshot over a read-only JSON API. It
// performs no aggregation of its own; every value it serves comes straight
// from the coordinator's published snapshot.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Philra94/homeassistant-energy-charts/internal/coordinator"
	middleware "github.com/Philra94/homeassistant-energy-charts/internal/server/middlewares"
)

// Config holds the options of the HTTP read surface.
type Config struct {
	CacheSize      int     // size of the LRU response cache
	RateLimit      float64 // requests per second
	RateLimitBurst int

	// Sensor group toggles; disabled groups are not routed.
	EnableIndividual bool
	EnableAggregated bool
	EnableCategories bool
	EnableForecasts  bool
	EnableHistory    bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheSize:        128,
		RateLimit:        5.0,
		RateLimitBurst:   10,
		EnableIndividual: true,
		EnableAggregated: true,
		EnableCategories: true,
	}
}

// SnapshotProvider serves the last published snapshot.
type SnapshotProvider interface {
	Snapshot() (*coordinator.Snapshot, bool)
	State() coordinator.State
}

// Prober checks upstream connectivity.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Server handles the read API.
type Server struct {
	provider SnapshotProvider
	prober   Prober
	config   Config
}

// SetupServer builds the full handler chain and returns it together with
// the response cache, which the caller wires to snapshot publication for
// invalidation.
func SetupServer(
	provider SnapshotProvider,
	prober Prober,
	config Config,
	logger *logrus.Logger,
	registry *prometheus.Registry,
) (http.Handler, *middleware.ResponseCache, error) {
	cache, err := middleware.NewResponseCache(config.CacheSize)
	if err != nil {
		return nil, nil, err
	}

	s := &Server{provider: provider, prober: prober, config: config}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	api.HandleFunc("GET /api/v1/probe", s.handleProbe)
	if config.EnableIndividual {
		api.HandleFunc("GET /api/v1/sources", s.handleSources)
		api.HandleFunc("GET /api/v1/sources/{key}", s.handleSource)
	}
	if config.EnableAggregated {
		api.HandleFunc("GET /api/v1/aggregated", s.handleAggregated)
	}
	if config.EnableCategories {
		api.HandleFunc("GET /api/v1/categories", s.handleCategories)
	}
	if config.EnableHistory {
		api.HandleFunc("GET /api/v1/history", s.handleHistory)
	}
	if config.EnableForecasts {
		api.HandleFunc("GET /api/v1/forecasts", s.handleForecasts)
	}

	root := http.NewServeMux()
	// The probe hits the upstream API; caching it would mask outages.
	root.Handle("GET /api/v1/probe", api)
	root.Handle("/api/v1/", cache.Middleware(api))
	root.HandleFunc("GET /healthz", s.handleHealthz)
	root.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	handler := chain(
		root,
		middleware.RequestID,
		middleware.RateLimit(config.RateLimit, config.RateLimitBurst),
		middleware.Logging(logger),
		middleware.Metrics(registry),
	)

	return handler, cache, nil
}

// chain applies middlewares so the first listed runs outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func (s *Server) snapshotOr503(w http.ResponseWriter) (*coordinator.Snapshot, bool) {
	snap, ok := s.provider.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no data available yet")
		return nil, false
	}
	return snap, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Sources)
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	record, ok := snap.Sources[r.PathValue("key")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleAggregated(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Aggregated)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Categories)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.History)
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Forecasts)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": s.prober.Probe(r.Context())})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.provider.State()
	if _, ok := s.provider.Snapshot(); !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"state":  state.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  state.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
