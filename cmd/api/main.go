package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/velo-booking/internal/api/router"
	"github.com/wolfman30/velo-booking/internal/app/bootstrap"
	"github.com/wolfman30/velo-booking/internal/backend"
	"github.com/wolfman30/velo-booking/internal/booking"
	appconfig "github.com/wolfman30/velo-booking/internal/config"
	"github.com/wolfman30/velo-booking/internal/confirmations"
	"github.com/wolfman30/velo-booking/internal/debounce"
	"github.com/wolfman30/velo-booking/internal/drafts"
	"github.com/wolfman30/velo-booking/internal/events"
	httpmiddleware "github.com/wolfman30/velo-booking/internal/http/middleware"
	"github.com/wolfman30/velo-booking/internal/notify"
	"github.com/wolfman30/velo-booking/internal/observability/metrics"
	"github.com/wolfman30/velo-booking/internal/stream"
	"github.com/wolfman30/velo-booking/internal/wizard"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting velo-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger, appDeps{aws: bootstrap.NewAWSClients(cfg)})
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	go a.registry.Run(ctx)
	if a.deliverer != nil {
		go a.deliverer.Start(ctx)
	}
	go a.limiter.Run(5*time.Minute, 10*time.Minute, ctx.Done())

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     a.handler,
		ReadTimeout: 15 * time.Second,
		// Backend calls are bounded by BACKEND_TIMEOUT; leave headroom.
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// appDeps lets tests replace external collaborators.
type appDeps struct {
	backend booking.Backend
	aws     bootstrap.AWSConfigLoader
}

type app struct {
	handler   http.Handler
	registry  *wizard.Registry
	hub       *stream.Hub
	deliverer *events.Deliverer
	limiter   *httpmiddleware.RateLimiter
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupMetrics() (http.Handler, *metrics.WizardMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewWizardMetrics(reg)
}

func loadLocation(name string, logger *logging.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("invalid DEFAULT_TIMEZONE, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, deps appDeps) (*app, error) {
	a := &app{}
	readyChecks := map[string]router.HealthCheck{}

	metricsHandler, wizardMetrics := setupMetrics()
	if !cfg.MetricsEnabled {
		metricsHandler = nil
	}

	bk := deps.backend
	if bk == nil {
		bk = backend.NewClient(backend.Options{
			BaseURL: cfg.BackendBaseURL,
			Token:   cfg.BackendAPIToken,
			Timeout: cfg.BackendTimeout,
			Logger:  logger,
		})
	}

	var snapshots wizard.SnapshotStore
	if redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
		snapshots = drafts.NewStore(redisClient, cfg.WizardIdleTTL)
		readyChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		logger.Info("wizard snapshots enabled", "ttl", cfg.WizardIdleTTL)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	if pool != nil {
		readyChecks["postgres"] = pool.Ping
		a.closers = append(a.closers, pool.Close)
	} else {
		logger.Warn("DATABASE_URL not set; confirmation receipts are kept in memory")
	}

	location := loadLocation(cfg.DefaultTimezone, logger)
	emailSender := bootstrap.BuildEmailSender(ctx, cfg, deps.aws, logger)
	publisher, err := bootstrap.BuildEventPublisher(ctx, cfg, deps.aws, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	sink, deliverer := bootstrap.BuildEventSink(pool, publisher, logger)
	a.deliverer = deliverer

	confirmSvc := confirmations.NewService(
		bootstrap.BuildConfirmationRepository(pool),
		notify.NewService(emailSender, location, logger),
		sink,
		logger,
	)

	a.hub = stream.NewHub(nil, logger)
	a.registry = wizard.NewRegistry(wizard.Deps{
		Backend:     bk,
		Logger:      logger,
		Metrics:     wizardMetrics,
		Location:    location,
		SearchDelay: cfg.CustomerSearchDebounce,
		Scheduler:   debounce.RealScheduler,
		Recorder:    confirmSvc,
	}, wizard.RegistryOptions{
		Snapshots: snapshots,
		Publisher: a.hub,
		IdleTTL:   cfg.WizardIdleTTL,
	})
	a.hub.SetSource(a.registry)

	a.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.handler = router.New(&router.Config{
		Logger:             logger,
		Wizards:            wizard.NewHandler(a.registry, logger),
		Stream:             a.hub.HandleWebSocket,
		Confirmations:      confirmations.NewHandler(confirmSvc, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        a.limiter,
		ReadyChecks:        readyChecks,
	})
	return a, nil
}
