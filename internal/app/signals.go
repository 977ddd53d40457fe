package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"minho/internal/services"
	"minho/pkg/logging"
)

// SignalAwaiter keeps the runtime alive until SIGINT or SIGTERM.
type SignalAwaiter struct {
	services.Base
	signals []os.Signal
}

// NewSignalAwaiter waits for sigs, or SIGINT and SIGTERM when none are
// given.
func NewSignalAwaiter(sigs ...os.Signal) *SignalAwaiter {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return &SignalAwaiter{
		Base:    services.NewBase("signals", services.DefaultPriority),
		signals: sigs,
	}
}

// Await returns when a signal arrives or ctx is done.
func (s *SignalAwaiter) Await(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, s.signals...)
	defer stop()

	logging.Info("CLI", "Running. Press Ctrl+C to stop all modules and exit.")
	<-ctx.Done()
	logging.Info("CLI", "--- Shutting down ---")
	return nil
}
