package server

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"
)

// Hook priorities for a serving session. Lower runs first: stop taking
// work, drain the discovery pipeline, then release the sinks that runs
// still write to.
const (
	PriorityEventStream    = 5
	PriorityHTTPServer     = 10
	PriorityOrchestrator   = 15
	PriorityTemporalWorker = 20
	PriorityTemporalClient = 25
	PriorityTracing        = 80
	PriorityDatabase       = 90
	PriorityAuditLogger    = 95
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownHook is one step of the shutdown sequence.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownConfig configures a ShutdownHandler.
type ShutdownConfig struct {
	// Timeout bounds the whole hook sequence.
	Timeout time.Duration
	Signals []os.Signal
	Logger  *slog.Logger
}

// DefaultShutdownConfig listens for SIGTERM and SIGINT with a 30s budget.
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: defaultShutdownTimeout,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// ShutdownHandler runs its hooks once, on a signal or on Shutdown.
type ShutdownHandler struct {
	cfg ShutdownConfig

	mu      sync.Mutex
	hooks   []ShutdownHook
	started bool
	err     error

	// requested is canceled when shutdown begins.
	requested context.Context
	request   context.CancelFunc
	done      chan struct{}
}

func NewShutdownHandler(config *ShutdownConfig) *ShutdownHandler {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	cfg := *config
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	requested, request := context.WithCancel(context.Background())
	return &ShutdownHandler{
		cfg:       cfg,
		requested: requested,
		request:   request,
		done:      make(chan struct{}),
	}
}

// RegisterHook adds a hook. Hooks of equal priority run in registration order.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.Register(ShutdownHook{Name: name, Priority: priority, Fn: fn})
}

func (s *ShutdownHandler) Register(hook ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Start watches for the configured signals. Calling it again does nothing.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	watch, stop := s.requested, func() {}
	if len(s.cfg.Signals) > 0 {
		watch, stop = signal.NotifyContext(s.requested, s.cfg.Signals...)
	}
	go func() {
		<-watch.Done()
		stop()
		if s.requested.Err() == nil {
			s.cfg.Logger.Info("shutdown signal received")
		}
		s.request()
		s.runHooks()
	}()
}

// Shutdown begins shutdown. It is a no-op before Start.
func (s *ShutdownHandler) Shutdown() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.request()
	}
}

// ShutdownCh is closed when shutdown begins.
func (s *ShutdownHandler) ShutdownCh() <-chan struct{} { return s.requested.Done() }

// Done is closed when every hook has run.
func (s *ShutdownHandler) Done() <-chan struct{} { return s.done }

// Wait blocks until every hook has run.
func (s *ShutdownHandler) Wait() { <-s.done }

// WaitWithTimeout reports whether shutdown completed within timeout.
func (s *ShutdownHandler) WaitWithTimeout(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

// Err joins the errors of failed hooks. It is valid after Done.
func (s *ShutdownHandler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ShutdownHandler) runHooks() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	s.mu.Lock()
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()
	slices.SortStableFunc(hooks, func(a, b ShutdownHook) int { return cmp.Compare(a.Priority, b.Priority) })

	var errs []error
	for _, hook := range hooks {
		start := time.Now()
		if err := hook.Fn(ctx); err != nil {
			s.cfg.Logger.Error("shutdown hook failed", "hook", hook.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
			continue
		}
		s.cfg.Logger.Debug("shutdown hook done", "hook", hook.Name, "duration", time.Since(start))
	}

	s.mu.Lock()
	s.err = errors.Join(errs...)
	s.mu.Unlock()
	close(s.done)
}

// HTTPServerShutdownHook stops accepting requests and drains open ones.
func HTTPServerShutdownHook(name string, shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: name, Priority: PriorityHTTPServer, Fn: shutdownFn}
}

// OrchestratorShutdownHook cancels the active discovery run and waits for
// in-flight runs, giving up when ctx expires.
func OrchestratorShutdownHook(closeFn func()) ShutdownHook {
	return ShutdownHook{
		Name:     "orchestrator",
		Priority: PriorityOrchestrator,
		Fn: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				closeFn()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

func TemporalWorkerShutdownHook(stopFn func()) ShutdownHook {
	return ShutdownHook{
		Name:     "temporal-worker",
		Priority: PriorityTemporalWorker,
		Fn: func(context.Context) error {
			stopFn()
			return nil
		},
	}
}

// TracingShutdownHook flushes pending spans.
func TracingShutdownHook(shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "tracing", Priority: PriorityTracing, Fn: shutdownFn}
}

// DatabaseShutdownHook closes the graph database driver.
func DatabaseShutdownHook(closeFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "database", Priority: PriorityDatabase, Fn: closeFn}
}

// AuditLoggerShutdownHook runs last so the other hooks can still be audited.
func AuditLoggerShutdownHook(closeFn func() error) ShutdownHook {
	return ShutdownHook{
		Name:     "audit-logger",
		Priority: PriorityAuditLogger,
		Fn:       func(context.Context) error { return closeFn() },
	}
}
