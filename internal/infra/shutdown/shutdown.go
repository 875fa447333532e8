// Package shutdown coordinates graceful process shutdown.
//
// Hooks registered with OnShutdown run in reverse registration order once a
// termination signal arrives or Trigger is called, sharing one timeout.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	hooks   []hook
	trigger chan string
	once    sync.Once
	done    chan struct{}
}

// NewHandler creates a new shutdown handler.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		trigger: make(chan string, 1),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named hook. Hooks run in reverse registration
// order, so register resources in the order they are created.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Trigger starts shutdown without a signal. Only the first call counts.
func (h *Handler) Trigger(reason string) {
	select {
	case h.trigger <- reason:
	default:
	}
}

// Wait blocks until SIGINT, SIGTERM or Trigger, then runs every hook and
// returns their joined errors.
func (h *Handler) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var reason string
	select {
	case sig := <-sigCh:
		reason = sig.String()
	case reason = <-h.trigger:
	}

	return h.run(reason)
}

func (h *Handler) run(reason string) error {
	var err error
	h.once.Do(func() {
		defer close(h.done)

		h.logger.Info("shutting down", "reason", reason, "timeout", h.timeout)

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := append([]hook(nil), h.hooks...)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			start := time.Now()
			if hookErr := hooks[i].fn(ctx); hookErr != nil {
				h.logger.Error("shutdown hook failed", "hook", hooks[i].name, "error", hookErr)
				errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, hookErr))
				continue
			}
			h.logger.Debug("shutdown hook completed", "hook", hooks[i].name, "elapsed", time.Since(start))
		}
		err = errors.Join(errs...)
	})
	return err
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
