package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	dunningprocessor "github.com/magabrotheeeer/entitlement-engine/internal/app/dunning-processor"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting dunning-processor", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := dunningprocessor.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("app stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("dunning-processor stopped gracefully")
}
