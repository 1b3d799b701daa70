package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"glabassets/internal/app"
	"glabassets/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runErr := application.Run(ctx)
	if err := application.Close(); err != nil {
		slog.Warn("Shutdown incomplete", slog.String("error", err.Error()))
	}
	if runErr != nil {
		slog.Error("Application error", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}
