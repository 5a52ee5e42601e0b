package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/astroplan/siqs-service/internal/api/http"
	"github.com/astroplan/siqs-service/internal/bortle"
	"github.com/astroplan/siqs-service/internal/cache"
	"github.com/astroplan/siqs-service/internal/config"
	"github.com/astroplan/siqs-service/internal/fetch"
	"github.com/astroplan/siqs-service/internal/kvstore"
	"github.com/astroplan/siqs-service/internal/observability"
	"github.com/astroplan/siqs-service/internal/scheduler"
	"github.com/astroplan/siqs-service/internal/siqs"
	"github.com/astroplan/siqs-service/internal/sources"
	"github.com/astroplan/siqs-service/internal/spots"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Durable state: typed key/value preferences, user Bortle measurements,
	// and the persisted cache tier share one SQLite file.
	db, err := kvstore.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	prefs, err := kvstore.New(db)
	if err != nil {
		log.Fatalf("failed to init preference store: %v", err)
	}
	measurements, err := bortle.New(db)
	if err != nil {
		log.Fatalf("failed to init measurement store: %v", err)
	}

	// Shared outbound layer: retries, backoff, circuit breakers.
	fetchOpts := fetch.Options{
		MaxRetries:    cfg.FetchRetries,
		RetryDelay:    cfg.FetchDelay,
		BackoffFactor: cfg.BackoffFactor,
		Timeout:       cfg.HTTPTimeout,
	}
	client := fetch.NewClient(&http.Client{}, logger, metrics)

	responseCache := cache.New(func(ctx context.Context, url string) ([]byte, error) {
		return client.Get(ctx, url, fetchOpts)
	}, clock, logger, metrics, prefs)
	responseCache.SetTTLs(cfg.CacheTTL, cfg.RegionalCacheTTL)

	// Data source adapters.
	weather := sources.NewWeatherSource(responseCache, logger, cfg.GridPrecision)
	light := sources.NewLightPollutionSource(responseCache, measurements, logger, cfg.LightPollutionURL)
	forecast := sources.NewForecastSource(responseCache, cfg.GridPrecision)
	geocoder := sources.NewGeocoder(responseCache, logger, cfg.GoogleAPIKey)

	service := siqs.NewService(
		weather, light, forecast, sources.MoonPhase,
		siqs.NewHistoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge),
		clock, logger, metrics,
		cfg.GridPrecision,
	)

	finder := spots.NewFinder(sources.EstimateBortle)
	defer finder.Close()

	sched := scheduler.New(cfg.Favorites, cfg.RefreshInterval, service, logger)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "siqs-service",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "siqs-service",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:  service,
		Geocoder: geocoder,
		Bortle:   measurements,
		Prefs:    prefs,
		Spots:    finder,
	})

	// Prometheus metrics on a side listener, away from the public API.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down metrics server", "error", err)
	}
}
