// Package shutdown wires OS signals into context cancellation so every
// long-running component stops through the same path.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"chatd/pkg/logger"
)

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE additionally dumps goroutine stacks before cancelling, which
// helps diagnose a wedged SSE client dragging the server down.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Log.Info("signal_received", zap.String("signal", s.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Log.Warn("signal_received",
				zap.String("signal", s.String()),
				zap.String("goroutines", string(buf[:n])))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
