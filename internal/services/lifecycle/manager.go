// Package lifecycle owns the engine's long-running components: it starts
// them, watches for termination signals and stops them in reverse order.
package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShutdownFunc stops one component.
type ShutdownFunc func(ctx context.Context) error

// RunFunc is a blocking component loop. It must return once ctx is done.
type RunFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []hook

	group    *errgroup.Group
	groupCtx context.Context
}

// New returns a manager whose background components run under ctx.
func New(ctx context.Context, timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &Manager{
		timeout:  timeout,
		logger:   logger,
		group:    group,
		groupCtx: groupCtx,
	}
}

// Register adds a shutdown hook. Hooks run in reverse registration order.
func (m *Manager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Go starts a background component. A component returning an error ends the
// shared context, which stops the service.
func (m *Manager) Go(name string, run RunFunc) {
	m.group.Go(func() error {
		m.logger.Info("component started", zap.String("component", name))
		if err := run(m.groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("component exited", zap.String("component", name), zap.Error(err))
			return err
		}
		return nil
	})
}

// Done is closed when the service should stop.
func (m *Manager) Done() <-chan struct{} {
	return m.groupCtx.Done()
}

// Wait blocks until every component started with Go has returned.
func (m *Manager) Wait() error {
	return m.group.Wait()
}

// Hooks lists registered shutdown hooks in the order they will run.
func (m *Manager) Hooks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.hooks))
	for i := len(m.hooks) - 1; i >= 0; i-- {
		out = append(out, m.hooks[i].name)
	}
	return out
}

// Shutdown runs every hook within the configured timeout and joins their
// errors. A failing hook does not stop the remaining ones.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	var result error
	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		if err := h.fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, err)
			continue
		}
		m.logger.Info("component stopped", zap.String("component", h.name))
	}
	return result
}

// Listen calls cancel on SIGTERM or SIGINT.
func (m *Manager) Listen(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-m.groupCtx.Done():
		}
	}()
}
