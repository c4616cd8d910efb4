package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"jumpgen/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer cleanup()

	slog.Info("jumpgen is running", "pid", os.Getpid())

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		log.Fatalf("run: %v", err)
	}

	slog.Info("jumpgen stopped")
}
