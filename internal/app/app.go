// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/checkout"
	"github.com/bissquit/toplane-coaching/internal/config"
	"github.com/bissquit/toplane-coaching/internal/discord"
	"github.com/bissquit/toplane-coaching/internal/fulfillment"
	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/payments/stripe"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
	"github.com/bissquit/toplane-coaching/internal/pkg/httputil"
	"github.com/bissquit/toplane-coaching/internal/pkg/metrics"
	"github.com/bissquit/toplane-coaching/internal/version"
	"github.com/bissquit/toplane-coaching/internal/web"
	"github.com/bissquit/toplane-coaching/internal/webhooks"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	correlator    *channels.Correlator
	fulfillment   *fulfillment.Service
	server        *http.Server
	metricsServer *http.Server
	bgCancel      context.CancelFunc
	bgWG          sync.WaitGroup
}

// Option customizes application wiring.
type Option func(*options)

type options struct {
	provider payments.Provider
	verifier payments.EventVerifier
}

// WithPaymentProvider replaces the Stripe checkout API client.
func WithPaymentProvider(provider payments.Provider) Option {
	return func(o *options) { o.provider = provider }
}

// WithEventVerifier replaces the Stripe webhook verifier.
func WithEventVerifier(verifier payments.EventVerifier) Option {
	return func(o *options) { o.verifier = verifier }
}

// New creates a new application instance.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	logger := initLogger(cfg.Log)

	openCtx, openCancel := context.WithTimeout(context.Background(), storeOpenTimeout(cfg.Store))
	defer openCancel()

	primary, db, err := openStore(openCtx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open channel store: %w", err)
	}

	var fallback channels.Store
	if cfg.Store.Driver != driverMemory {
		fallback = newMemoryStore()
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
		correlator: channels.NewCorrelator(primary, fallback, channels.CorrelatorConfig{
			Retention: cfg.Store.Retention,
		}),
		bgCancel: bgCancel,
	}

	router, err := app.setupRouter(opts...)
	if err != nil {
		bgCancel()
		_ = app.correlator.Close()
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.startBackground(bgCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"store", a.config.Store.Driver,
		"discord_enabled", a.config.Discord.Enabled(),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	for _, srv := range []*http.Server{a.server, a.metricsServer} {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
				mu.Unlock()
			}
		}(srv)
	}

	wg.Wait()

	a.bgCancel()
	a.bgWG.Wait()

	if err := a.correlator.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel store: %w", err))
	}
	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Correlator returns the session-to-channel store.
func (a *App) Correlator() *channels.Correlator {
	return a.correlator
}

// Fulfillment returns the fulfillment pipeline, used by the CLI.
func (a *App) Fulfillment() *fulfillment.Service {
	return a.fulfillment
}

func (a *App) startBackground(ctx context.Context) {
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		a.correlator.RunSweeper(ctx, a.config.Store.SweepInterval)
	}()

	if a.db != nil {
		a.bgWG.Add(1)
		go func() {
			defer a.bgWG.Done()
			a.collectDBMetrics(ctx)
		}()
	}
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) setupRouter(opts ...Option) (*chi.Mux, error) {
	cfg := a.config

	stripeClient := stripe.New(stripe.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		APIURL:        cfg.Stripe.APIURL,
	})
	o := options{provider: stripeClient, verifier: stripeClient}
	for _, opt := range opts {
		opt(&o)
	}

	discordClient := discord.NewClient(discord.Config{
		BotToken:  cfg.Discord.BotToken,
		GuildID:   cfg.Discord.GuildID,
		APIURL:    cfg.Discord.APIURL,
		RateLimit: cfg.Discord.RateLimit,
		Timeout:   cfg.Discord.Timeout,
	})
	notifier := discord.NewNotifier(discordClient, cfg.Discord.NotificationsChannelID, cfg.Discord.NotificationsChannel)

	onboarding, err := discord.LoadOnboarding()
	if err != nil {
		return nil, fmt.Errorf("load onboarding content: %w", err)
	}

	provisioner := fulfillment.NewProvisioner(discordClient, onboarding, fulfillment.ProvisionerConfig{
		CategoryName: cfg.Discord.CategoryName,
		StaffRoleIDs: cfg.Discord.StaffRoleIDs,
		CoachMention: cfg.Discord.CoachMention,
		BookingURLs:  cfg.Calendly.BookingURLs,
	})

	a.fulfillment = fulfillment.NewService(a.correlator, provisioner, notifier, o.provider, fulfillment.Config{
		ClaimTTL: cfg.Store.ClaimTTL,
	})

	pages, err := web.NewHandler(web.Config{
		APIBase:        "/api/v1",
		SupportContact: cfg.Server.SupportContact,
		Poll: web.PollPolicy{
			InitialDelay: cfg.Poller.InitialDelay,
			Interval:     cfg.Poller.Interval,
			Multiplier:   cfg.Poller.Multiplier,
			MaxInterval:  cfg.Poller.MaxInterval,
			MaxAttempts:  cfg.Poller.MaxAttempts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create page handler: %w", err)
	}

	checkoutHandler := checkout.NewHandler(checkout.NewService(o.provider, cfg.Server.PublicBaseURL))
	channelsHandler := channels.NewHandler(a.correlator)
	fulfillmentHandler := fulfillment.NewHandler(a.fulfillment, notifier)
	stripeWebhook := webhooks.NewStripeHandler(o.verifier, a.fulfillment)
	calendlyWebhook := webhooks.NewCalendlyHandler(webhooks.CalendlyConfig{
		SigningKey: cfg.Calendly.SigningKey,
		InviteURL:  cfg.Discord.InviteURL,
	}, notifier, a.correlator, discordClient)

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(cfg.Server.CORSAllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Coaching API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({url: "/api/openapi.yaml", dom_id: "#swagger-ui"});
    </script>
</body>
</html>`))
	})

	pages.RegisterRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		checkoutHandler.RegisterRoutes(r)
		stripeWebhook.RegisterRoutes(r)
		calendlyWebhook.RegisterRoutes(r)
		channelsHandler.RegisterRoutes(r)
		fulfillmentHandler.RegisterRoutes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(httputil.AdminTokenMiddleware(cfg.Admin.Token))
			channelsHandler.RegisterAdminRoutes(r)
			fulfillmentHandler.RegisterAdminRoutes(r)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.correlator.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
