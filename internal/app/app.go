package app

import (
	"context"
	"errors"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-caja/internal/auth"
	"github.com/noah-isme/backend-caja/internal/cache"
	"github.com/noah-isme/backend-caja/internal/catalog"
	"github.com/noah-isme/backend-caja/internal/checkout"
	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/config"
	"github.com/noah-isme/backend-caja/internal/drawer"
	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/health"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/lock"
	"github.com/noah-isme/backend-caja/internal/payment"
	"github.com/noah-isme/backend-caja/internal/pricing"
	"github.com/noah-isme/backend-caja/internal/promo"
	"github.com/noah-isme/backend-caja/internal/queue"
	"github.com/noah-isme/backend-caja/internal/ratelimit"
	"github.com/noah-isme/backend-caja/internal/report"
	"github.com/noah-isme/backend-caja/internal/repo"
)

// Ports are the storage adapters the services run on.
type Ports struct {
	Catalog    catalog.Catalog
	Promotions promo.Store
	Sessions   drawer.Store
	Journal    ledger.Journal
	Receipts   checkout.ReceiptWriter
	Sales      report.Source
	Events     events.EventStore
}

// PostgresPorts binds every port to its pgx adapter on db.
func PostgresPorts(db repo.DBTX) Ports {
	journal := repo.Journal{DB: db}
	return Ports{
		Catalog:    repo.CatalogRepo{DB: db},
		Promotions: repo.PromotionRepo{DB: db},
		Sessions:   repo.SessionRepo{DB: db},
		Journal:    journal,
		Receipts:   journal,
		Sales:      journal,
		Events:     repo.EventRepo{DB: db},
	}
}

// Options carries the infrastructure shared by the services. Redis, Scheduler,
// Inspector, Limiter and Health are optional.
type Options struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Redis     *redis.Client
	Scheduler events.DeliveryScheduler
	Inspector queue.Inspector
	Limiter   ratelimit.Allower
	Health    health.Checker
	Registry  prometheus.Registerer
	Now       func() time.Time
}

// App is the assembled register service.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Tokens   *auth.Tokens
	Validate *validator.Validate
	Catalog  catalog.Catalog
	Engine   pricing.Engine
	Drawers  *drawer.Manager
	Checkout *checkout.Service
	Reports  *report.Service
	Bus      *events.Bus

	redis     *redis.Client
	inspector queue.Inspector
	limiter   ratelimit.Allower
	health    health.Checker
	registry  prometheus.Registerer
	now       func() time.Time
}

// New wires services onto ports.
func New(opts Options, ports Ports) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tokens, err := auth.NewTokens(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.AuthIssuer,
		Audience:  cfg.AuthAudience,
		ClockSkew: cfg.AuthClockSkew,
		TTL:       cfg.AuthTokenTTL,
	})
	if err != nil {
		return nil, err
	}
	tokens.WithNow(now)
	logger := opts.Logger

	cat := ports.Catalog
	if cat == nil {
		return nil, errors.New("app: catalog port required")
	}
	if opts.Redis != nil && cfg.CatalogCacheTTL > 0 {
		cat = catalog.CachedCatalog{
			Next:   cat,
			Cache:  cache.New(opts.Redis, cfg.CatalogCacheTTL, "caja:catalog:"),
			Logger: logger.With().Str("component", "catalog").Logger(),
		}
	}
	engine := pricing.Engine{
		Catalog:     cat,
		Resolver:    promo.Resolver{Store: ports.Promotions, Logger: logger.With().Str("component", "promo").Logger()},
		Scale:       cfg.CurrencyScale,
		Concurrency: 8,
	}

	eventStore := ports.Events
	if eventStore == nil {
		eventStore = &events.MemoryStore{}
	}
	bus := &events.Bus{
		Store:     eventStore,
		Scheduler: opts.Scheduler,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}},
		Now:       now,
	}

	drawerCfg := drawer.Config{
		Ledger:  ledger.New(ports.Journal),
		Store:   ports.Sessions,
		LockTTL: cfg.DrawerLockTTL,
		Events:  bus,
		Logger:  logger.With().Str("component", "drawer").Logger(),
		Now:     now,
	}
	if opts.Redis != nil {
		drawerCfg.Locker = lock.Locker{R: opts.Redis, RetryBackoff: cfg.LockRetryBackoff, Prefix: "caja:lock:"}
	}
	drawers := drawer.NewManager(drawerCfg)

	svc := &checkout.Service{
		Pricer:     engine,
		Reconciler: payment.Reconciler{Now: now},
		Drawer:     drawers,
		Receipts:   ports.Receipts,
		Events:     bus,
		Logger:     logger.With().Str("component", "checkout").Logger(),
	}

	reports := &report.Service{
		Source:   ports.Sales,
		Location: cfg.Location,
		Scale:    cfg.CurrencyScale,
		Logger:   logger.With().Str("component", "report").Logger(),
	}
	if opts.Redis != nil && cfg.ReportCacheTTL > 0 {
		reports.Cache = &report.Cache{Store: cache.New(opts.Redis, cfg.ReportCacheTTL, "caja:")}
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Tokens:    tokens,
		Validate:  common.NewValidator(),
		Catalog:   cat,
		Engine:    engine,
		Drawers:   drawers,
		Checkout:  svc,
		Reports:   reports,
		Bus:       bus,
		redis:     opts.Redis,
		inspector: opts.Inspector,
		limiter:   opts.Limiter,
		health:    opts.Health,
		registry:  opts.Registry,
		now:       now,
	}, nil
}

// Restore reloads the drawer sessions left open by a previous process.
func (a *App) Restore(ctx context.Context) error {
	n, err := a.Drawers.Restore(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("sessions", n).Msg("restored open drawer sessions")
	return nil
}
