package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/organoz/village-market/internal/apply"
	"github.com/organoz/village-market/internal/auth"
	"github.com/organoz/village-market/internal/catalog"
	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/config"
	"github.com/organoz/village-market/internal/events"
	"github.com/organoz/village-market/internal/health"
	tenantguard "github.com/organoz/village-market/internal/http/middleware"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/notify"
	"github.com/organoz/village-market/internal/obs"
	"github.com/organoz/village-market/internal/order"
	"github.com/organoz/village-market/internal/photo"
	"github.com/organoz/village-market/internal/queue"
	"github.com/organoz/village-market/internal/ratelimit"
	"github.com/organoz/village-market/internal/security"
	"github.com/organoz/village-market/internal/store/postgres"
	"github.com/organoz/village-market/internal/tenant"
	"github.com/organoz/village-market/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "village-market-api",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "village-market-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	db := postgres.New(pool)

	mailer := notify.QueueSender{
		Queue:  queue.Enqueuer{R: redisClient, Prefix: cfg.QueuePrefix, DedupTTL: cfg.IdempotencyTTL},
		Logger: logger,
	}

	resolver := tenant.NewResolver(cfg.TenantHeader, db.Tenants, logger)

	authService, err := auth.NewService(auth.Config{
		Users:         db.Users,
		Secret:        cfg.JWTSecret,
		TokenTTL:      cfg.TokenTTL,
		ResetTokenTTL: cfg.ResetTokenTTL,
		Sender:        mailer,
		FrontendBase:  cfg.FrontendBaseURL,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	var photoHost photo.Host = photo.NopHost{}
	if cfg.PhotoHostURL != "" {
		photoHost = photo.NewHTTPHost(cfg.PhotoHostURL, cfg.PhotoHostKey, cfg.PhotoHostSecret)
	}
	catalogService := catalog.NewService(catalog.ServiceConfig{
		Products: db.Products,
		Users:    db.Users,
		Host:     photoHost,
		Cache:    catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Logger:   logger,
	})
	catalogHandler := &catalog.Handler{Service: catalogService}

	bus := &events.Bus{Notifiers: []events.Notifier{
		notify.EmailNotifier{Mail: mailer, Enabled: true},
	}}

	orderService := order.NewService(order.ServiceConfig{
		Tenants:  db.Tenants,
		Users:    db.Users,
		Products: db.Products,
		Orders:   db.Orders,
		Events:   bus,
		Logger:   logger,
	})
	orderHandler := &order.Handler{Service: orderService}

	applyService := apply.NewService(apply.ServiceConfig{
		Applications: db.Applications,
		Tenants:      db.Tenants,
		Users:        db.Users,
		Events:       bus,
		Logger:       logger,
	})
	applyHandler := &apply.Handler{Service: applyService}

	userHandler := &user.Handler{Service: user.NewService(db.Users)}
	tenantHandler := &tenant.Handler{Store: db.Tenants}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	authLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: cfg.QueuePrefix + ":ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.KeyByIPAndTenant,
			Window: time.Minute,
			Max:    cfg.RateLimitPerMinute,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable, letting request through")
		},
	}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: 32 << 20}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(resolver.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.TenantHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Checker: readinessChecker{db: pool, redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/tenants", tenantHandler.List)
		v.Post("/farmers/apply", applyHandler.Submit)

		v.Route("/auth", func(a chi.Router) {
			a.Use(authLimit.Middleware)
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/admin/login", authHandler.AdminLogin)
			a.Post("/password/forgot", authHandler.ForgotPassword)
			a.Post("/password/reset", authHandler.ResetPassword)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
			})
		})

		v.Route("/products", func(p chi.Router) {
			p.Use(tenantguard.RequireTenant)
			p.Get("/", catalogHandler.List)
			p.Get("/by-farmer", catalogHandler.ListByFarmer)
			p.Get("/{id}", catalogHandler.Get)
			p.Group(func(g chi.Router) {
				g.Use(authMiddleware.RequireAuth)
				g.Use(authMiddleware.RequireRole(model.RoleFarmer, model.RoleAdmin))
				g.Post("/", catalogHandler.Create)
				g.Put("/{id}", catalogHandler.Update)
				g.Delete("/{id}", catalogHandler.Delete)
			})
		})

		v.Route("/orders", func(o chi.Router) {
			o.Use(authMiddleware.Authenticate)
			o.With(idem.Middleware).Post("/", orderHandler.Place)
			o.Get("/", orderHandler.List)
			o.Get("/{id}", orderHandler.Get)
			o.Group(func(g chi.Router) {
				g.Use(authMiddleware.RequireAuth)
				g.Put("/{id}/status", orderHandler.UpdateStatus)
				g.Put("/{id}/items/{productId}/status", orderHandler.UpdateItemStatus)
			})
		})

		v.Group(func(authed chi.Router) {
			authed.Use(authMiddleware.RequireAuth)
			authed.Get("/users/{id}", userHandler.Get)
			authed.Put("/users/{id}/profile", userHandler.UpdateProfile)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(authMiddleware.RequireRole(model.RoleAdmin))
			admin.Get("/applications", applyHandler.List)
			admin.Get("/applications/{id}", applyHandler.Get)
			admin.Post("/applications/{id}/approve", applyHandler.Approve)
			admin.Post("/applications/{id}/reject", applyHandler.Reject)
			admin.With(tenantguard.RequireTenant).Post("/catalog/photo-sweep", catalogHandler.SweepPhotos)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
