package app

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-caja/internal/auth"
	"github.com/noah-isme/backend-caja/internal/catalog"
	"github.com/noah-isme/backend-caja/internal/checkout"
	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/drawer"
	"github.com/noah-isme/backend-caja/internal/health"
	"github.com/noah-isme/backend-caja/internal/obs"
	"github.com/noah-isme/backend-caja/internal/pricing"
	"github.com/noah-isme/backend-caja/internal/queue"
	"github.com/noah-isme/backend-caja/internal/ratelimit"
	"github.com/noah-isme/backend-caja/internal/report"
	"github.com/noah-isme/backend-caja/internal/security"
)

// Router builds the HTTP surface of the register.
func (a *App) Router() http.Handler {
	cfg := a.Config
	logger := a.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestInfoMiddleware)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, a.registry)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replay", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectBasic(newPprofMux(), cfg.AdminBasicAuthUser, cfg.AdminBasicAuthPass))
	}

	healthHandler := health.Handler{
		Checker:      a.health,
		DBTimeout:    cfg.Obs.ReadyDBTimeout,
		RedisTimeout: cfg.Obs.ReadyRedisTimeout,
		OpenDrawers:  a.Drawers.OpenCount,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	authMW := auth.Middleware{Tokens: a.Tokens}
	catalogHandler := catalog.Handler{Catalog: a.Catalog}
	promoHandler := pricing.Handler{Engine: a.Engine, Location: cfg.Location, Now: a.now}
	drawerHandler := &drawer.Handler{Manager: a.Drawers, Validate: a.Validate, Location: cfg.Location, Now: a.now}
	checkoutHandler := &checkout.Handler{Svc: a.Checkout, Validate: a.Validate, Location: cfg.Location, Now: a.now}
	reportHandler := &report.Handler{Svc: a.Reports}
	idem := common.Idem{R: a.redis, TTL: cfg.IdempotencyTTL, Prefix: "caja:"}
	limit := ratelimit.Handler{
		Limiter: a.limiter,
		Config:  ratelimit.Config{Key: ratelimit.ByTerminal, Window: cfg.CheckoutRateWindow, Max: cfg.CheckoutRateLimit},
		OnError: func(err error) { logger.Warn().Err(err).Msg("checkout rate limiter unavailable") },
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		v.Group(func(t chi.Router) {
			t.Use(authMW.RequireTerminal)

			t.Get("/catalog/items/{ident}", catalogHandler.Item)
			t.Get("/promotions/active", promoHandler.ActivePromotions)

			t.Route("/caja", func(c chi.Router) {
				c.Get("/status", drawerHandler.Status)
				c.With(idem.Middleware).Post("/open", drawerHandler.Open)
				c.With(idem.Middleware).Post("/close", drawerHandler.Close)
				c.With(idem.Middleware).Post("/expenses", drawerHandler.Expense)
				c.Get("/sessions/{id}/balance", drawerHandler.Balance)
			})

			t.Route("/cashier", func(c chi.Router) {
				c.Post("/quote", checkoutHandler.Quote)
				c.With(limit.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
			})

			t.Get("/reports/caja", reportHandler.Caja)
		})

		if a.inspector != nil {
			queueAdmin := &queue.AdminHandler{Inspector: a.inspector, Queue: cfg.QueueName}
			v.Route("/admin/queue", func(q chi.Router) {
				q.Use(func(next http.Handler) http.Handler {
					return protectBasic(next, cfg.AdminBasicAuthUser, cfg.AdminBasicAuthPass)
				})
				q.Get("/stats", queueAdmin.Stats)
				q.Get("/dlq", queueAdmin.ListDLQ)
				q.Post("/dlq/{id}/replay", queueAdmin.ReplayDLQ)
			})
		}
	})

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

// protectBasic guards handler with HTTP basic auth. Without a configured user
// the handler is refused outright.
func protectBasic(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user == "" {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access not configured", nil)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "admin credentials required", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
