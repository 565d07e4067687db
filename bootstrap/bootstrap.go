// Package bootstrap wires config, stores, adapters and services into a runnable app.
// Both the long-running server (cmd/api) and the serverless handler (api) build through here.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/application/credits"
	"greencoin-backend/internal/application/ingestion"
	"greencoin-backend/internal/application/leaderboard"
	"greencoin-backend/internal/application/ledger"
	"greencoin-backend/internal/application/reconcile"
	"greencoin-backend/internal/application/settlement"
	"greencoin-backend/internal/config"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/database"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/infrastructure/sensor"
	"greencoin-backend/internal/interfaces/router"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/logger"
	"greencoin-backend/internal/scheduler"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type App struct {
	Fiber     *fiber.App
	Scheduler *scheduler.Scheduler
	DB        *gorm.DB
	Rdb       *redis.Client
	Log       zerolog.Logger
}

// New loads config from the environment and builds the app.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return Build(cfg, logger.New(cfg.LogLevel, cfg.LogPretty))
}

// Build opens Postgres and Redis from cfg and wires every service.
func Build(cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("Postgres connected")

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info().Msg("Redis connected")

	return Wire(cfg, db, rdb, log)
}

// Wire assembles services around already-open stores. Adapters are the in-process
// content store and chain, each bounded by cfg.AdapterTimeout.
func Wire(cfg *config.Config, db *gorm.DB, rdb *redis.Client, log zerolog.Logger) (*App, error) {
	store := &external.TimedStore{Inner: external.NewHashContentStore(), Timeout: cfg.AdapterTimeout}
	chain := &external.TimedChain{Inner: external.NewLocalChain(), Timeout: cfg.AdapterTimeout}
	var notifier notify.Publisher = &notify.RedisPublisher{Rdb: rdb}

	ingest := &ingestion.Service{
		DB:          db,
		Accumulator: &ingestion.GormAccumulator{DB: db},
		Store:       store,
		Chain:       chain,
		Notifier:    notifier,
		Log:         log.With().Str("svc", "ingestion").Logger(),
	}
	sim := sensor.NewSimulator(ingest, time.Now().UnixNano(), log.With().Str("svc", "sensor").Logger())

	creditSvc := &credits.Service{
		DB:           db,
		Store:        store,
		Chain:        chain,
		Notifier:     notifier,
		SensorSecret: cfg.SensorSecret,
		Log:          log.With().Str("svc", "credits").Logger(),
	}
	settleSvc := &settlement.Service{DB: db, Chain: chain, Notifier: notifier, Log: log.With().Str("svc", "settlement").Logger()}
	ledgerSvc := &ledger.Service{DB: db, Notifier: notifier, Log: log.With().Str("svc", "ledger").Logger()}
	actorSvc := &actors.Service{DB: db, Log: log.With().Str("svc", "actors").Logger()}
	board := &leaderboard.Service{
		DB:   db,
		Rdb:  rdb,
		Size: cfg.LeaderboardSize,
		TTL:  10 * time.Minute,
		Log:  log.With().Str("svc", "leaderboard").Logger(),
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)

	reconciler := &reconcile.Reconciler{
		DB:    db,
		Chain: chain,
		Resolvers: map[string]reconcile.Resolver{
			domain.IntentBatchMint:  ingest,
			domain.IntentPurchase:   creditSvc,
			domain.IntentConfirmBuy: settleSvc,
		},
		After: cfg.ReconcileAfter,
		Batch: 50,
		Log:   log.With().Str("svc", "reconcile").Logger(),
	}

	sched := scheduler.New(log.With().Str("svc", "scheduler").Logger())
	jobs := []scheduler.Job{
		{
			Name:     "leaderboard",
			Schedule: cfg.LeaderboardSchedule,
			Timeout:  30 * time.Second,
			Run: func(ctx context.Context) error {
				_, err := board.Rebuild(ctx)
				return err
			},
		},
		{
			Name:     "reconcile",
			Schedule: cfg.ReconcileSchedule,
			Timeout:  time.Minute,
			Run: func(ctx context.Context) error {
				report, err := reconciler.Run(ctx)
				if err == nil && report.Checked > 0 {
					log.Info().Interface("report", report).Msg("reconcile pass")
				}
				return err
			},
		},
		{
			Name:     "limiter-prune",
			Schedule: "@every 5m",
			Run: func(ctx context.Context) error {
				limiter.Prune(10 * time.Minute)
				return nil
			},
		},
	}
	if cfg.SamplerInterval > 0 && cfg.SamplerProducerID != "" {
		producerID, err := uuid.Parse(cfg.SamplerProducerID)
		if err != nil {
			return nil, fmt.Errorf("SAMPLER_PRODUCER_ID: %w", err)
		}
		jobs = append(jobs, scheduler.Job{
			Name:     "sensor",
			Schedule: "@every " + cfg.SamplerInterval.String(),
			Timeout:  cfg.SamplerInterval,
			Run: func(ctx context.Context) error {
				return sim.Tick(ctx, producerID)
			},
		})
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return nil, err
		}
	}

	app := router.CreateApp(cfg, router.Deps{
		DB:          db,
		Rdb:         rdb,
		Actors:      actorSvc,
		Ingestion:   ingest,
		Credits:     creditSvc,
		Settlement:  settleSvc,
		Ledger:      ledgerSvc,
		Leaderboard: board,
		Limiter:     limiter,
		Log:         log,
	})

	return &App{Fiber: app, Scheduler: sched, DB: db, Rdb: rdb, Log: log}, nil
}

// Close releases the store connections.
func (a *App) Close() error {
	if a.Rdb != nil {
		_ = a.Rdb.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}
