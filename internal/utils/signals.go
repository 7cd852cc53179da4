package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownGrace bounds how long GracefulShutdown waits for the
// listener to stop and stop() to return before giving up and exiting
// anyway.
const shutdownGrace = 30 * time.Second

// GracefulShutdown blocks until SIGINT, SIGTERM, or SIGQUIT, then
// cancels ctx (stopping the accept loop) and runs stop. In-flight
// transfer sessions are not canceled by this: each owns its own
// ephemeral socket and file handle and winds down on its own
// retry/timeout budget, per the server's concurrency model.
func GracefulShutdown(ctx context.Context, cancel context.CancelFunc, logger *Logger, stop func() error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigCh
	logger.Info("received signal %s, stopping listener...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		if stop != nil {
			done <- stop()
		} else {
			done <- nil
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("error stopping server manager: %v", err)
		} else {
			logger.Info("listener stopped; any in-flight sessions finish on their own")
		}
	case <-shutdownCtx.Done():
		logger.Warn("shutdown grace period exceeded, exiting with sessions still in flight")
	}
}
