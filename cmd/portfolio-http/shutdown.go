package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// notifyContext is cancelled on SIGINT or SIGTERM.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func shutdown(parent context.Context, s *http.Server, timeout time.Duration, logger *slog.Logger) {
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
}
