// Package main is the entrypoint for the Hearthside API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthside/hearthside/internal/auth"
	"github.com/hearthside/hearthside/internal/billing"
	"github.com/hearthside/hearthside/internal/cache"
	"github.com/hearthside/hearthside/internal/config"
	"github.com/hearthside/hearthside/internal/handler"
	"github.com/hearthside/hearthside/internal/metrics"
	"github.com/hearthside/hearthside/internal/middleware"
	"github.com/hearthside/hearthside/internal/repository"
	"github.com/hearthside/hearthside/internal/server"
	"github.com/hearthside/hearthside/internal/service"
	"github.com/hearthside/hearthside/internal/storage"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Apply schema migrations
	if err := repository.Migrate(cfg.DatabaseURL); err != nil {
		logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	// Sessions
	sessions := cache.NewSessionStore(cacheClient, cfg.SessionTTL)

	// Services
	iterations := auth.ClampIterations(cfg.PBKDF2Iterations)
	accountService := service.NewAccountService(repo, iterations, logger, recorder)

	var billingService *service.BillingService
	if cfg.StripeReady() {
		stripeClient := billing.NewStripeClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		billingService = service.NewBillingService(repo, stripeClient, cfg.StripePriceID, logger, recorder)
		logger.Info("billing enabled", "price_id", cfg.StripePriceID)
	} else {
		logger.Warn("billing disabled: Stripe configuration incomplete")
	}

	var imageStore *storage.ImageStore
	if cfg.ImagesReady() {
		imageStore, err = storage.NewImageStore(ctx, cfg.ImagesBucket, cfg.ImagesEndpoint, cfg.ImagesRegion)
		if err != nil {
			logger.Error("failed to initialize image store", "error", err)
			os.Exit(1)
		}
		logger.Info("image store enabled", "bucket", cfg.ImagesBucket)
	} else {
		logger.Warn("image store disabled: no bucket configured")
	}

	// Handlers
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	accountHandler := handler.NewAccountHandler(accountService, sessions, handler.CookieConfig{
		Name:   cfg.SessionCookie,
		Secure: cfg.SecureCookies || cfg.IsProduction(),
	}, logger)

	var billingHandler *handler.BillingHandler
	if billingService != nil {
		billingHandler = handler.NewBillingHandler(billingService, cfg.AppURL, logger)
	}

	var imageHandler *handler.ImageHandler
	if imageStore != nil {
		imageHandler = handler.NewImageHandler(imageStore, logger)
	}

	// Setup router
	r := setupRouter(routerDeps{
		health:   healthHandler,
		account:  accountHandler,
		billing:  billingHandler,
		images:   imageHandler,
		sessions: sessions,
		users:    repo,
		cache:    cacheClient,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	})

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"app_url", cfg.AppURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// routerDeps bundles everything setupRouter wires together.
type routerDeps struct {
	health   *handler.HealthHandler
	account  *handler.AccountHandler
	billing  *handler.BillingHandler
	images   *handler.ImageHandler
	sessions *cache.SessionStore
	users    middleware.UserFinder
	cache    *cache.Cache
	registry *prometheus.Registry
	cfg      *config.Config
	logger   *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))

	if origins := d.cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = origins
		r.Use(middleware.CORS(corsCfg))
	}

	// Health endpoints (no auth required)
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)

	// Prometheus metrics
	r.Method("GET", "/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))

	// Listing images, served straight from the object store
	if d.images != nil {
		r.Get("/images/*", d.images.Serve)
	}

	sessionCfg := middleware.SessionConfig{
		Logger:     d.logger,
		Store:      d.sessions,
		Users:      d.users,
		CookieName: d.cfg.SessionCookie,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  d.logger,
		Cache:   d.cache,
		Enabled: d.cfg.RateLimitAuthEnabled,
		RPS:     d.cfg.RateLimitAuthRPS,
		Burst:   d.cfg.RateLimitAuthBurst,
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Security(middleware.SecurityConfig{
			IsDevelopment:      d.cfg.IsDevelopment(),
			MaxRequestBodySize: d.cfg.MaxRequestBodySize,
		}))
		r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))
		r.Use(middleware.Session(sessionCfg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimitAuth(rateLimitCfg)).Post("/signup", d.account.SignUp)
			r.With(middleware.RateLimitAuth(rateLimitCfg)).Post("/signin", d.account.SignIn)
			r.Post("/signout", d.account.SignOut)
		})

		if d.billing != nil {
			r.Route("/stripe", func(r chi.Router) {
				// Webhook deliveries authenticate by signature, not session
				r.Post("/webhook", d.billing.Webhook)

				r.With(middleware.RequireSession).Post("/subscriptions", d.billing.CreateSubscription)

				// Browser-facing: anonymous visitors land on the sign-in
				// page instead of a JSON error
				r.With(middleware.RequireSessionRedirect("/signin")).Post("/portal", d.billing.Portal)
			})

			r.With(middleware.RequireSession).Get("/billing", d.billing.Overview)
		}
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
