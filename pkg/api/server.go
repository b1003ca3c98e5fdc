// Package api serves the local REST façade: cached directory and live
// call state as JSON, component health, Prometheus metrics, and a
// WebSocket stream of call events. The route surface and response
// shapes match what the dashboard front end already consumes.
//
// Everything served here is read from in-memory state; no handler
// blocks on the manager connection or the database.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/service"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/version"
)

// ErrInvalidConfig indicates a Config that cannot produce a server.
var ErrInvalidConfig = errors.New("invalid api configuration")

const shutdownTimeout = 5 * time.Second

// SnapshotSource provides the views served by the data routes.
// *service.SnapshotBuilder implements it.
type SnapshotSource interface {
	Agents() []service.AgentStatus
	Queues() []service.QueueStatus
	Calls() []service.CallStatus
	Stats() service.StatsSummary
}

// HealthSources reports per-component connectivity for /api/health.
// A nil probe reports the component as down, matching a component that
// was never wired.
type HealthSources struct {
	AMI       func() bool
	MySQL     func() bool
	Dashboard func() bool
}

// Config configures the REST façade.
type Config struct {
	// Addr is the listen address, "host:port".
	Addr string

	// Token protects every /api/* route except /api/health. Empty
	// disables authentication.
	Token string

	// Source backs the agents, queues, calls and stats routes.
	Source SnapshotSource

	// Health backs the /api/health component report.
	Health HealthSources

	// Metrics serves /metrics and registers the façade's own
	// collectors. Nil disables both.
	Metrics *prometheus.Registry

	Logger zerolog.Logger
}

// Server is the façade HTTP server plus its event hub.
type Server struct {
	addr    string
	token   string
	logger  zerolog.Logger
	source  SnapshotSource
	health  HealthSources
	metrics *apiMetrics
	hub     *Hub
	httpSrv *http.Server
}

// NewServer builds the server and its routes. Start it with Run.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: listen address is required", ErrInvalidConfig)
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: snapshot source is required", ErrInvalidConfig)
	}

	s := &Server{
		addr:   cfg.Addr,
		token:  cfg.Token,
		logger: cfg.Logger.With().Str("component", "api").Logger(),
		source: cfg.Source,
		health: cfg.Health,
		hub:    NewHub(cfg.Logger),
	}
	if cfg.Metrics != nil {
		s.metrics = newAPIMetrics(cfg.Metrics)
		s.hub.metrics = s.metrics
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.endpoint("health", false, s.handleHealth))
	mux.HandleFunc("/api/agents", s.endpoint("agents", true, s.handleAgents))
	mux.HandleFunc("/api/queues", s.endpoint("queues", true, s.handleQueues))
	mux.HandleFunc("/api/calls", s.endpoint("calls", true, s.handleCalls))
	mux.HandleFunc("/api/stats", s.endpoint("stats", true, s.handleStats))
	mux.HandleFunc("/api/events", s.endpoint("events", true, s.hub.handleEvents))
	if cfg.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Broadcast queues an event for the /api/events subscribers.
func (s *Server) Broadcast(event Event) {
	s.hub.Broadcast(event)
}

// ClientCount returns the number of connected event subscribers.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// Run serves until ctx is canceled, then shuts the listener down and
// disconnects every WebSocket subscriber. Returns ctx.Err() on a clean
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Shutdown does not cover hijacked connections; the hub closes
		// its own subscribers.
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	})
	g.Go(func() error {
		s.logger.Info().Str("addr", s.addr).Msg("REST facade listening")
		err := s.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	})

	return g.Wait()
}

// endpoint wraps a handler with the method check, bearer auth, and
// request counting shared by every route.
func (s *Server) endpoint(name string, authed bool, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if authed && !s.authorized(r) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, http.StatusUnauthorized, "Invalid authentication token")
			return
		}
		if s.metrics != nil {
			s.metrics.requestsTotal.WithLabelValues(name).Inc()
		}
		h(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	presented := strings.TrimPrefix(auth, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}

type healthComponents struct {
	AMI       bool `json:"ami"`
	MySQL     bool `json:"mysql"`
	Dashboard bool `json:"dashboard"`
}

type healthResponse struct {
	Status     string           `json:"status"`
	Timestamp  string           `json:"timestamp"`
	Version    string           `json:"version"`
	Components healthComponents `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Connector,
		Components: healthComponents{
			AMI:       s.health.AMI != nil && s.health.AMI(),
			MySQL:     s.health.MySQL != nil && s.health.MySQL(),
			Dashboard: s.health.Dashboard != nil && s.health.Dashboard(),
		},
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Agents())
}

func (s *Server) handleQueues(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Queues())
}

func (s *Server) handleCalls(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Calls())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("Writing response failed")
	}
}

// writeError emits the error shape the previous façade produced, which
// the dashboard front end still parses.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}
