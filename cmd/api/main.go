package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greencoin-backend/bootstrap"
	"greencoin-backend/internal/config"
	"greencoin-backend/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	app, err := bootstrap.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Scheduler.Start()

	go func() {
		log.Info().Str("port", cfg.Port).Msgf("Server running at http://localhost:%s", cfg.Port)
		log.Info().Msgf("Health check: http://localhost:%s/health/json", cfg.Port)
		if err := app.Fiber.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("listener stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Fiber.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	app.Scheduler.Stop()
}
