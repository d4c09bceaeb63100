package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a supervised task.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusBackoff Status = "backoff"
	StatusFailed  Status = "failed"
)

// Task is a long-running unit of work. It should block until done or
// until ctx is cancelled. A nil return (or ctx.Err()) means a clean
// exit; any other error triggers a restart with backoff.
type Task func(ctx context.Context) error

// Config holds configuration for a supervised task.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// InitialBackoff is the delay before the first restart.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling restart delay.
	MaxBackoff time.Duration

	// StableAfter is how long a task must run before the backoff
	// resets to InitialBackoff. Prevents a task that crashes after
	// minutes of work from being treated as flapping.
	StableAfter time.Duration

	// MaxRestarts limits restart attempts. 0 means unlimited.
	MaxRestarts int

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int, err error)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor restarts a failing task with doubling backoff.
//
// It owns no goroutines of its own: Run blocks the calling goroutine,
// so the caller decides where the supervised work lives.
type Supervisor struct {
	config Config
	task   Task
	logger Logger

	mu           sync.RWMutex
	status       Status
	restartCount int
	lastError    error
	startTime    time.Time
}

// New creates a supervisor for the given task.
func New(cfg Config, task Task) *Supervisor {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = 30 * time.Second
	}

	return &Supervisor{
		config: cfg,
		task:   task,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Run executes the task, restarting it on failure until ctx is
// cancelled, the task exits cleanly, or MaxRestarts is exceeded.
//
// Returns:
//   - nil: task exited cleanly or ctx was cancelled
//   - error: the final task error when restarts are exhausted
func (s *Supervisor) Run(ctx context.Context) error {
	delay := s.config.InitialBackoff

	for {
		s.setStatus(StatusRunning)
		started := time.Now()
		s.mu.Lock()
		s.startTime = started
		s.mu.Unlock()

		err := s.task(ctx)

		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			s.logger.Info("task stopped", "name", s.config.Name)
			s.setStatus(StatusStopped)
			return nil
		}

		s.mu.Lock()
		s.lastError = err
		s.restartCount++
		attempt := s.restartCount
		s.mu.Unlock()

		if s.config.MaxRestarts > 0 && attempt > s.config.MaxRestarts {
			s.logger.Error("max restarts reached",
				"name", s.config.Name,
				"attempts", attempt,
			)
			s.setStatus(StatusFailed)
			return fmt.Errorf("task %s failed after %d restarts: %w", s.config.Name, attempt-1, err)
		}

		// A run that survived the stability window is not flapping.
		if time.Since(started) >= s.config.StableAfter {
			delay = s.config.InitialBackoff
		}

		s.logger.Warn("task failed, restarting",
			"name", s.config.Name,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt, err)
		}

		s.setStatus(StatusBackoff)
		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped)
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.config.MaxBackoff {
			delay = s.config.MaxBackoff
		}
	}
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the current status of the supervised task.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RestartCount returns the number of times the task has been restarted.
func (s *Supervisor) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// LastError returns the last error the task exited with.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Uptime returns how long the current run has been active.
// Returns 0 if the task is not running.
func (s *Supervisor) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning {
		return 0
	}
	return time.Since(s.startTime)
}
