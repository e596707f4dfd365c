package mirror

import (
	"context"
	"log/slog"
	"sync"

	"github.com/twinview/twinview/internal/kv"
)

// Controller is the slice of Mirror the coordinator drives.
type Controller interface {
	Init(ctx context.Context) error
	Stop()
}

// Coordinator reacts to transport connectivity transitions and
// configuration changes by driving full stop/reinit cycles of a mirror.
//
// On reconnect no resumption point is assumed: the mirror is rebuilt from
// a fresh snapshot plus a new watcher rather than attempting to replay a
// gap. On disconnect only the watcher is torn down — entries are
// deliberately left in place so the UI shows stale data instead of going
// blank.
type Coordinator struct {
	logger *slog.Logger

	mu   sync.Mutex
	ctrl Controller
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger. Defaults to slog.Default.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a coordinator driving the given controller.
func NewCoordinator(ctrl Controller, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		logger: slog.Default(),
		ctrl:   ctrl,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes connectivity transitions until ctx is cancelled or the
// status channel closes.
//
//   - connected: forced Init, rebuilding snapshot and watcher
//   - disconnected: Stop only; entries and error state are untouched
func (c *Coordinator) Run(ctx context.Context, status <-chan kv.ConnStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-status:
			if !ok {
				return
			}
			c.handle(ctx, s)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, s kv.ConnStatus) {
	ctrl := c.Controller()
	if ctrl == nil {
		return
	}
	switch s {
	case kv.StatusConnected:
		c.logger.Info("transport connected, rebuilding mirror")
		if err := ctrl.Init(ctx); err != nil {
			c.logger.Error("mirror rebuild failed", "error", err)
		}
	case kv.StatusDisconnected:
		c.logger.Warn("transport disconnected, stopping watcher")
		ctrl.Stop()
	}
}

// Swap replaces the controlled mirror after a configuration change
// (bucket name or filter, e.g. resolved from templated variables).
//
// The old mirror is fully stopped — its epoch bumped, so in-flight
// completions from the old configuration are inert — before the new one
// is initialized. Two mirrors never write into the same entries map;
// each owns its own.
func (c *Coordinator) Swap(ctx context.Context, next Controller) error {
	c.mu.Lock()
	old := c.ctrl
	c.ctrl = next
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if next == nil {
		return nil
	}
	return next.Init(ctx)
}

// Controller returns the currently controlled mirror.
func (c *Coordinator) Controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl
}
