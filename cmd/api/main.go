package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-caja/internal/app"
	"github.com/noah-isme/backend-caja/internal/config"
	"github.com/noah-isme/backend-caja/internal/health"
	"github.com/noah-isme/backend-caja/internal/obs"
	"github.com/noah-isme/backend-caja/internal/queue"
	"github.com/noah-isme/backend-caja/internal/ratelimit"
	"github.com/noah-isme/backend-caja/internal/repo"
	"github.com/noah-isme/backend-caja/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)

	if cfg.Obs.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "caja-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.Obs.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := repo.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := app.OpenPostgres(startCtx, cfg, "caja-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	redisClient, err := app.OpenRedis(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	asynqOpt, err := app.AsynqRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure asynq")
	}
	asynqClient := asynq.NewClient(asynqOpt)
	defer func() { _ = asynqClient.Close() }()
	inspector := asynq.NewInspector(asynqOpt)
	defer func() { _ = inspector.Close() }()

	limiter, err := ratelimit.NewRedisLimiter(redisClient, "caja:ratelimit:")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	a, err := app.New(app.Options{
		Config: cfg,
		Logger: logger,
		Redis:  redisClient,
		Scheduler: queue.Scheduler{
			Client:      asynqClient,
			Queue:       cfg.QueueName,
			MaxAttempts: cfg.EventMaxAttempts,
			Timeout:     cfg.EventTaskTimeout,
			Breaker: resilience.NewBreaker(resilience.Config{
				Target:       "event-scheduler",
				MinRequests:  cfg.BreakerMinRequests,
				FailureRatio: cfg.BreakerFailureRatio,
				OpenFor:      cfg.BreakerOpenFor,
				Logger:       logger.With().Str("component", "breaker").Logger(),
			}),
		},
		Inspector: inspector,
		Limiter:   limiter,
		Health:    health.Pinger{DB: pool, Redis: redisClient},
	}, app.PostgresPorts(pool))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise app")
	}
	if err := a.Restore(startCtx); err != nil {
		logger.Fatal().Err(err).Msg("restore drawer sessions")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Int("open_drawers", a.Drawers.OpenCount()).Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}
