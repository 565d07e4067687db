package router

import (
	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/application/credits"
	"greencoin-backend/internal/application/ingestion"
	"greencoin-backend/internal/application/leaderboard"
	"greencoin-backend/internal/application/ledger"
	"greencoin-backend/internal/application/settlement"
	"greencoin-backend/internal/config"
	"greencoin-backend/internal/infrastructure/metrics"
	actorhandler "greencoin-backend/internal/interfaces/handlers/actors"
	authhandler "greencoin-backend/internal/interfaces/handlers/auth"
	credithandler "greencoin-backend/internal/interfaces/handlers/credits"
	healthhandler "greencoin-backend/internal/interfaces/handlers/health"
	iothandler "greencoin-backend/internal/interfaces/handlers/iot"
	boardhandler "greencoin-backend/internal/interfaces/handlers/leaderboard"
	ledgerhandler "greencoin-backend/internal/interfaces/handlers/ledger"
	mkthandler "greencoin-backend/internal/interfaces/handlers/marketplace"
	settlehandler "greencoin-backend/internal/interfaces/handlers/settlement"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps are the wired services the HTTP surface calls into.
type Deps struct {
	DB          *gorm.DB
	Rdb         *redis.Client
	Actors      *actors.Service
	Ingestion   *ingestion.Service
	Credits     *credits.Service
	Settlement  *settlement.Service
	Ledger      *ledger.Service
	Leaderboard *leaderboard.Service
	Limiter     *middleware.RateLimiter
	Log         zerolog.Logger
}

func CreateApp(cfg *config.Config, d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	sessionCfg := middleware.SessionConfig{
		Secret:       cfg.SessionSecret,
		IsProduction: cfg.IsProduction(),
	}

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSOrigins,
		AllowLocalhost: !cfg.IsProduction(),
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger(d.Log))
	app.Use(middleware.Metrics())
	app.Use(middleware.HealthMarker(d.Rdb))
	app.Use(middleware.Session(sessionCfg, d.Rdb))
	if d.Limiter != nil {
		app.Use(d.Limiter.Handler())
	}

	hh := &healthhandler.Handlers{Rdb: d.Rdb, DB: d.DB, HealthAdminKey: cfg.HealthAdminKey}
	app.Get("/", hh.Dashboard)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api/v1")

	ah := &authhandler.Handlers{Actors: d.Actors, Rdb: d.Rdb, Config: sessionCfg}
	authGroup := api.Group("/auth")
	authGroup.Post("/register", ah.Register)
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", middleware.RequireAuth(), ah.Me)
	authGroup.Delete("/logout", middleware.RequireAuth(), ah.Logout)

	bh := &boardhandler.Handlers{Service: d.Leaderboard}
	api.Get("/leaderboard/producers", bh.Producers)
	api.Get("/leaderboard/buyers", bh.Buyers)

	authed := api.Group("", middleware.RequireAuth())
	perm := middleware.AuthorizePermission

	ih := &iothandler.Handlers{Service: d.Ingestion}
	authed.Post("/iot/readings", perm(constants.RecordReadings), ih.RecordReading)
	authed.Get("/iot/readings/latest", perm(constants.RecordReadings), ih.Latest)
	authed.Post("/producer/batches", perm(constants.SubmitBatch), ih.SubmitBatch)
	authed.Get("/producer/stats", perm(constants.SubmitBatch), ih.Stats)

	ch := &credithandler.Handlers{Service: d.Credits}
	authed.Post("/sensors", perm(constants.ApproveSensors), ch.RegisterSensor)
	authed.Post("/credits/mint", perm(constants.MintCredits), ch.Mint)
	authed.Post("/credits/retire", perm(constants.RetireCredits), ch.Retire)
	authed.Post("/credits/revoke", perm(constants.RevokeCredits), ch.Revoke)
	authed.Get("/credits/owned", ch.Owned)
	authed.Get("/credits/:id", ch.Get)

	mh := &mkthandler.Handlers{Service: d.Credits}
	authed.Get("/marketplace/listings", mh.Listings)
	authed.Post("/marketplace/list", perm(constants.ListCredits), mh.List)
	authed.Post("/marketplace/buy", perm(constants.BuyCredits), mh.Buy)
	authed.Put("/marketplace/confirm/:txId", perm(constants.BuyCredits), mh.Confirm)

	sh := &settlehandler.Handlers{Service: d.Settlement}
	authed.Post("/sell-requests", perm(constants.CreateSellRequest), sh.Create)
	authed.Get("/sell-requests/pending", sh.Pending)
	authed.Post("/sell-requests/:id/assign", perm(constants.AssignBuyer), sh.Assign)
	authed.Post("/sell-requests/:id/confirm", perm(constants.ConfirmBuy), sh.Confirm)
	authed.Get("/producer/history", perm(constants.CreateSellRequest), sh.History)
	authed.Get("/invoices/:id", sh.Invoice)
	authed.Post("/wallets/fund", perm(constants.FundWallets), sh.FundWallet)

	lh := &ledgerhandler.Handlers{Service: d.Ledger}
	authed.Get("/ledger/entries", perm(constants.ViewLedger), lh.Entries)
	authed.Get("/ledger/summary", perm(constants.ViewLedger), lh.Summary)
	authed.Get("/ledger/verify", perm(constants.ViewLedger), lh.Verify)
	authed.Get("/transactions/summary", perm(constants.ViewLedger), lh.TransactionsSummary)

	acth := &actorhandler.Handlers{Service: d.Actors, Rdb: d.Rdb}
	authed.Get("/actors", perm(constants.ManageActors), acth.List)
	authed.Put("/actors/:id/blacklist", perm(constants.ManageActors), acth.SetBlacklisted)

	return app
}
