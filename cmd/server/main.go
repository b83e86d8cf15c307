package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"paysync/internal/app/server"
	"paysync/internal/config"
	"paysync/internal/utils/logger"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, cfg.Logger.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to init app", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("close app", logger.Err(err))
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Error("server stopped with error", logger.Err(err))
		return
	}
	log.Info("server stopped", slog.String("deployment", cfg.Deployment))
}
