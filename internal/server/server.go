// Package server exposes the bill scanning pipeline over HTTP for the
// sizing funnel frontend.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voltmetric/billscan/internal/pipeline"
	"github.com/voltmetric/billscan/internal/sizing"
)

// Config holds server configuration.
type Config struct {
	Host               string
	Port               int
	MaxUploadMB        int64
	TimeoutSec         int
	ShutdownTimeoutSec int
	RateLimitPerMin    int
	Pipeline           pipeline.Config
	Sizing             sizing.Parameters
}

// coordinatorIdleTTL bounds the per-client coordinator map: entries whose
// client has not scanned within this window are dropped before a new client
// is added.
const coordinatorIdleTTL = 10 * time.Minute

// Server owns one scanner shared by all requests. Each client gets its own
// coordinator, so a client re-submitting a photo supersedes only its own
// in-flight scan.
type Server struct {
	cfg         Config
	scanner     *pipeline.Scanner
	rateLimiter *RateLimiter

	mu             sync.Mutex
	coordinators   map[string]*coordinatorEntry
	coordinatorTTL time.Duration
}

type coordinatorEntry struct {
	coord    *pipeline.Coordinator
	lastUsed time.Time
}

// NewServer builds the scanner from cfg and wires the server around it.
func NewServer(cfg Config) (*Server, error) {
	scanner, err := pipeline.NewBuilder().WithConfig(cfg.Pipeline).Build()
	if err != nil {
		return nil, fmt.Errorf("build scanner: %w", err)
	}
	return NewServerWith(scanner, cfg), nil
}

// NewServerWith wraps an existing scanner; tests inject one with a stubbed
// recognition provider.
func NewServerWith(scanner *pipeline.Scanner, cfg Config) *Server {
	s := &Server{
		cfg:            cfg,
		scanner:        scanner,
		coordinators:   make(map[string]*coordinatorEntry),
		coordinatorTTL: coordinatorIdleTTL,
	}
	if cfg.RateLimitPerMin > 0 {
		s.rateLimiter = NewRateLimiter(cfg.RateLimitPerMin)
	}
	return s
}

// Close releases the scanner.
func (s *Server) Close() error {
	return s.scanner.Close()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.instrument(s.healthHandler))
	mux.HandleFunc("/v1/scan", s.instrument(s.rateLimit(s.scanHandler)))
	mux.HandleFunc("/v1/scan/pdf", s.instrument(s.rateLimit(s.scanPDFHandler)))
	mux.Handle("/metrics", promhttp.Handler())
}

// ListenAndServe runs the server until ctx is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.cfg.TimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.TimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	slog.Info("server draining")
	return httpServer.Shutdown(shutdownCtx)
}

// coordinatorFor returns the per-client coordinator, creating it on first
// use. Idle entries are evicted before a new client is added, so the map
// only ever holds clients active within the TTL window.
func (s *Server) coordinatorFor(clientID string) *pipeline.Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	e, ok := s.coordinators[clientID]
	if !ok {
		s.evictIdleLocked(now)
		e = &coordinatorEntry{coord: pipeline.NewCoordinator(s.scanner)}
		s.coordinators[clientID] = e
	}
	e.lastUsed = now
	return e.coord
}

func (s *Server) evictIdleLocked(now time.Time) {
	for id, e := range s.coordinators {
		if now.Sub(e.lastUsed) > s.coordinatorTTL {
			delete(s.coordinators, id)
		}
	}
}
