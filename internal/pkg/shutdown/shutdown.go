// Package shutdown runs cleanup handlers when the process is asked to stop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"adrender/internal/pkg/logger"
)

// Manager handles graceful shutdown of services.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}

	stopping context.Context
	stop     context.CancelFunc
}

// Handler is a function that performs cleanup during shutdown.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a new shutdown manager.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault()
	}
	stopping, stop := context.WithCancel(context.Background())
	return &Manager{
		log:      log.WithComponent("shutdown"),
		timeout:  timeout,
		handlers: make([]Handler, 0),
		done:     make(chan struct{}),
		stopping: stopping,
		stop:     stop,
	}
}

// Register adds a cleanup handler. Handlers run last-registered first, one
// at a time, so the HTTP server drains before the pools it uses close.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a simple cleanup handler without context.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(ctx context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until shutdown signal is received, then runs cleanup.
func (m *Manager) Wait() {
	m.WaitWithContext(context.Background())
}

// WaitWithContext waits for a signal or for ctx, then runs cleanup.
func (m *Manager) WaitWithContext(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	}

	m.Shutdown()
}

// Shutdown cancels Context and runs all cleanup handlers. Only the first
// call does any work.
func (m *Manager) Shutdown() {
	m.once.Do(m.shutdown)
}

func (m *Manager) shutdown() {
	m.stop()

	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := len(handlers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				return
			}
			m.run(ctx, handlers[i])
		}
	}()

	select {
	case <-finished:
		m.log.Info("graceful shutdown completed")
	case <-ctx.Done():
		m.log.Warn("shutdown timeout exceeded, forcing exit")
	}

	close(m.done)
}

func (m *Manager) run(ctx context.Context, h Handler) {
	m.log.Debug("running shutdown handler", "name", h.Name)
	start := time.Now()

	if err := h.Cleanup(ctx); err != nil {
		m.log.Error("shutdown handler failed",
			"name", h.Name,
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	m.log.Debug("shutdown handler completed",
		"name", h.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Done returns a channel that is closed when shutdown is complete.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Context is canceled as soon as shutdown begins. Background batches run
// under it.
func (m *Manager) Context() context.Context {
	return m.stopping
}
