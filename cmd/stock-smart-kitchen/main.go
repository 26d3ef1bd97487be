package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/priyankabp/stock-smart-kitchen/internal/api/http"
	"github.com/priyankabp/stock-smart-kitchen/internal/aggregate"
	"github.com/priyankabp/stock-smart-kitchen/internal/config"
	"github.com/priyankabp/stock-smart-kitchen/internal/forecast"
	"github.com/priyankabp/stock-smart-kitchen/internal/ingest"
	"github.com/priyankabp/stock-smart-kitchen/internal/inventory"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/livefeed"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
	"github.com/priyankabp/stock-smart-kitchen/internal/query"
	"github.com/priyankabp/stock-smart-kitchen/internal/scheduler"
	"github.com/priyankabp/stock-smart-kitchen/internal/store"
	"github.com/priyankabp/stock-smart-kitchen/internal/weather"
	"github.com/priyankabp/stock-smart-kitchen/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.L.Fatalf("failed to load config: %v", err)
	}
	log.Setup(cfg.App.LogLevel, cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Time-series store.
	var (
		ts kitchen.Store
		db *sql.DB
	)
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err = store.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.L.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			log.L.Fatalf("failed to migrate database: %v", err)
		}
		ts = pg
	default:
		ts = store.NewMemoryStore(cfg.Store.MaxHistory)
	}

	// Rollup cache.
	var (
		cache    aggregate.Cache
		sweepers []scheduler.Sweeper
	)
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.L.Fatalf("failed to connect to redis: %v", err)
		}
		cache = aggregate.NewRedisCache(rdb)
	default:
		mem := aggregate.NewMemoryCache()
		cache = mem
		sweepers = append(sweepers, mem)
	}

	engine := aggregate.NewEngine(ts, cache, aggregate.Options{
		CacheTTL:            cfg.Cache.TTL,
		MovingAverageWindow: cfg.Query.MovingAverageWindow,
	})

	params := forecast.DefaultParams()
	params.MinSamples = cfg.Forecast.MinSamples
	params.SeasonLength = cfg.Forecast.SeasonLength
	model, err := forecast.NewRegistry().New(cfg.Forecast.Model, params)
	if err != nil {
		log.L.Fatalf("failed to build forecast model: %v", err)
	}
	ledger := forecast.NewLedger()

	// Inventory.
	thresholds := inventory.Thresholds{
		OptimalFloor:   cfg.Inventory.OptimalFloor,
		OptimalCeiling: cfg.Inventory.OptimalCeiling,
	}
	inv := inventory.NewMemoryRepository()
	if cfg.Inventory.SeedFile != "" {
		seedInventory(ctx, inv, cfg.Inventory.SeedFile)
	}

	svc := query.NewService(engine, model, ledger, inv, thresholds, cfg.Locations, query.Options{
		DefaultTimeout: cfg.Query.DefaultTimeout,
		MaxTimeout:     cfg.Query.MaxTimeout,
		MaxHorizon:     cfg.Forecast.MaxHorizon,
	})

	// Live feed of accepted observations.
	hub := livefeed.NewHub()
	go hub.Run(ctx)

	adapter := ingest.NewAdapter(ts, cfg.Locations)
	adapter.Subscribe(hub)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.Weather.HTTPTimeout,
	}

	// Providers with resilience (backoff + circuit breaker).
	var provs []weather.Provider
	if cfg.Weather.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.Weather.OpenWeatherAPIKey))
	}
	if cfg.Weather.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.Weather.WeatherAPIKey))
	}
	// Open-Meteo needs no key; sites without coordinates are geocoded.
	var geocode providers.GeocodeFunc
	if cfg.Weather.GeocoderAPIKey != "" {
		geocode = providers.GoogleGeocoder(cfg.Weather.GeocoderAPIKey)
	}
	provs = append(provs, providers.NewOpenMeteoProvider(httpClient, geocode))

	syncer := weather.NewSyncer(provs, adapter)

	limiter := httpapi.NewRateLimiter(cfg.Ingest.RateLimit, cfg.Ingest.RateBurst, 5*time.Minute)
	sweepers = append(sweepers, limiter)

	sched := scheduler.New(
		scheduler.WeatherJob(syncer, cfg.Locations, cfg.Weather.FetchInterval),
		scheduler.RetentionJob(ts, ledger, cfg.Store.MaxAge, cfg.Jobs.RetentionInterval),
		scheduler.ReconcileJob(svc, cfg.Jobs.ReconcileInterval),
		scheduler.SweepJob(time.Minute, sweepers...),
	)
	if err := sched.Start(); err != nil {
		log.L.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(0)
	httpapi.RegisterRoutes(app, httpapi.NewHandler(adapter, svc, inv, thresholds, hub, cfg.Ingest.MaxBatch), limiter)

	go func() {
		log.L.WithFields(log.Fields{
			"port":      cfg.App.Port,
			"store":     cfg.Store.Backend,
			"cache":     cfg.Cache.Backend,
			"model":     model.Name(),
			"locations": len(cfg.Locations),
		}).Info("starting http server")
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			log.L.WithError(err).Error("fiber server stopped")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.L.WithError(err).Error("error during shutdown")
	}
}

func seedInventory(ctx context.Context, repo inventory.Repository, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.L.Fatalf("failed to open inventory seed: %v", err)
	}
	defer f.Close()

	n, err := inventory.Seed(ctx, repo, f)
	if err != nil {
		log.L.Fatalf("failed to seed inventory: %v", err)
	}
	log.L.WithField("items", n).Info("inventory seeded")
}
