package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/plcwire/uabridge/internal/bridges/opcua"
	"github.com/plcwire/uabridge/internal/infrastructure/config"
	"github.com/plcwire/uabridge/internal/infrastructure/logging"
	"github.com/plcwire/uabridge/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusSource provides the bridge state exposed by the API.
// Implemented by the sync engine.
type StatusSource interface {
	Snapshot() opcua.Snapshot
	Healthy() bool
}

// JournalSource provides recent journal entries.
// Implemented by *journal.Journal; nil when the journal is disabled.
type JournalSource interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Status  StatusSource
	Journal JournalSource // optional
	Version string
}

// Server is the HTTP status API server.
//
// It exposes read-only visibility into the bridge: health, tag sync
// state, counters and the event journal. It never accepts commands;
// writes flow exclusively over MQTT.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	status  StatusSource
	journal JournalSource
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: required dependencies (config, logger, status source)
//
// Returns:
//   - *Server: configured server ready to start
//   - error: if required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		status:  deps.Status,
		journal: deps.Journal,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; stop it with Close().
//
// Returns:
//   - error: if the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", s.server.Addr)

	go func() {
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
