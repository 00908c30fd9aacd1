// Package main запускает HTTP API подписок Pro.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/entitlement-service/internal/app/entitlementapi"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/logger"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	log.Info("starting entitlement-api", slog.String("env", cfg.Env))
	log.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := entitlementapi.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("entitlement-api stopped gracefully")
}
