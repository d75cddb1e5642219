// Package shutdown provides interrupt handling and ordered cleanup for long crawl runs.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// CleanupFunc is a function called during shutdown.
type CleanupFunc func(ctx context.Context) error

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// Handler turns OS signals into context cancellation and runs registered
// cleanups once, in LIFO order.
type Handler struct {
	logger   *slog.Logger
	timeout  time.Duration
	signals  []os.Signal
	mu       sync.Mutex
	cleanups []namedCleanup
	once     sync.Once
	received chan os.Signal
}

// New creates a new shutdown handler.
func New(logger *slog.Logger, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		timeout:  timeout,
		signals:  []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		received: make(chan os.Signal, 1),
	}
}

// Register adds a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first called).
func (h *Handler) Register(name string, fn CleanupFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, namedCleanup{name: name, fn: fn})
}

// Context returns a child of parent that is cancelled when an interrupt
// signal arrives. The returned stop function releases the signal handler.
func (h *Handler) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.signals...)

	go func() {
		select {
		case sig := <-sigCh:
			h.logger.Warn("received interrupt, finishing current step", "signal", sig.String())
			select {
			case h.received <- sig:
			default:
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// Interrupted reports whether a signal has been received.
func (h *Handler) Interrupted() bool {
	return len(h.received) > 0
}

// Shutdown runs every registered cleanup exactly once, sequentially, newest
// first. Later cleanups still run when an earlier one fails.
func (h *Handler) Shutdown() error {
	var errs []error

	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		cleanups := make([]namedCleanup, len(h.cleanups))
		copy(cleanups, h.cleanups)
		h.mu.Unlock()

		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			if err := c.fn(ctx); err != nil {
				h.logger.Error("cleanup failed", "component", c.name, "error", err)
				errs = append(errs, err)
				continue
			}
			h.logger.Debug("cleanup done", "component", c.name)
		}

		if ctx.Err() != nil {
			h.logger.Warn("shutdown timed out")
		}
	})

	return errors.Join(errs...)
}
