package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/coldtag-core/internal/correlation"
	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/cache"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/config"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/logging"
	"github.com/nerrad567/coldtag-core/internal/ingest"
	"github.com/nerrad567/coldtag-core/internal/routecycle"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every dependency reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// IngestStats reports per-stream ingestion counters. *ingest.Pipeline satisfies it.
type IngestStats interface {
	Stats() []ingest.StreamStats
}

// CacheStats reports device cache counters. *cache.LRU satisfies it.
type CacheStats interface {
	Stats() cache.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	OfflineAfter time.Duration
	Logger       *logging.Logger
	Registry     *device.Registry
	Events       *telemetry.Store
	Cycles       *routecycle.Service
	Correlation  *correlation.Engine

	// Checks are probed by /health under their map key. Optional.
	Checks map[string]HealthChecker

	// Ingest is reported by /health and /metrics. Optional.
	Ingest IngestStats

	// Cache is reported by /metrics. Optional.
	Cache CacheStats

	Version string
}

// Server is the HTTP API server for Coldtag Core.
//
// It is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	offlineAfter time.Duration
	logger       *logging.Logger
	registry     *device.Registry
	events       *telemetry.Store
	cycles       *routecycle.Service
	correlation  *correlation.Engine
	checks       map[string]HealthChecker
	ingest       IngestStats
	cache        CacheStats
	validate     *validator.Validate
	version      string
	startTime    time.Time
	now          func() time.Time
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if deps.Cycles == nil {
		return nil, fmt.Errorf("route cycle service is required")
	}
	if deps.Correlation == nil {
		return nil, fmt.Errorf("correlation engine is required")
	}

	offlineAfter := deps.OfflineAfter
	if offlineAfter <= 0 {
		offlineAfter = 5 * time.Minute
	}

	return &Server{
		cfg:          deps.Config,
		offlineAfter: offlineAfter,
		logger:       deps.Logger,
		registry:     deps.Registry,
		events:       deps.Events,
		cycles:       deps.Cycles,
		correlation:  deps.Correlation,
		checks:       deps.Checks,
		ingest:       deps.Ingest,
		cache:        deps.Cache,
		validate:     newValidator(),
		version:      deps.Version,
		startTime:    time.Now(),
		now:          time.Now,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
