package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/priyankabp/stock-smart-kitchen/internal/forecast"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type AppConfig struct {
	App       App       `mapstructure:",squash"`
	Store     Store     `mapstructure:",squash"`
	Cache     Cache     `mapstructure:",squash"`
	Forecast  Forecast  `mapstructure:",squash"`
	Query     Query     `mapstructure:",squash"`
	Ingest    Ingest    `mapstructure:",squash"`
	Weather   Weather   `mapstructure:",squash"`
	Jobs      Jobs      `mapstructure:",squash"`
	Inventory Inventory `mapstructure:",squash"`

	// LocationsRaw is "id:City:CC,id2:City2:CC2"; parsed into Locations.
	LocationsRaw string         `mapstructure:"locations"`
	Locations    []kitchen.Site `mapstructure:"-"`
}

type App struct {
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`
	Port     string `mapstructure:"port"`
}

type Store struct {
	Backend     string        `mapstructure:"store_backend"`
	DatabaseURL string        `mapstructure:"database_url"`
	MaxHistory  int           `mapstructure:"store_max_history"` // per stream, 0 = unlimited
	MaxAge      time.Duration `mapstructure:"store_max_age"`     // 0 = unlimited
}

type Cache struct {
	Backend   string        `mapstructure:"cache_backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"aggregate_cache_ttl"`
}

type Forecast struct {
	Model        string `mapstructure:"forecast_model"`
	MinSamples   int    `mapstructure:"forecast_min_samples"`
	SeasonLength int    `mapstructure:"forecast_season_length"`
	MaxHorizon   int    `mapstructure:"forecast_max_horizon"`
}

type Query struct {
	DefaultTimeout      time.Duration `mapstructure:"query_default_timeout"`
	MaxTimeout          time.Duration `mapstructure:"query_max_timeout"`
	MovingAverageWindow int           `mapstructure:"moving_average_window"`
}

type Ingest struct {
	MaxBatch  int     `mapstructure:"ingest_max_batch"`
	RateLimit float64 `mapstructure:"ingest_rate_limit"` // requests per second per client
	RateBurst int     `mapstructure:"ingest_rate_burst"`
}

type Weather struct {
	FetchInterval     time.Duration `mapstructure:"weather_fetch_interval"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	OpenWeatherAPIKey string        `mapstructure:"openweather_api_key"`
	WeatherAPIKey     string        `mapstructure:"weatherapi_api_key"`
	GeocoderAPIKey    string        `mapstructure:"geocoder_api_key"`
}

type Jobs struct {
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

type Inventory struct {
	OptimalFloor   float64 `mapstructure:"inventory_optimal_floor"`
	OptimalCeiling float64 `mapstructure:"inventory_optimal_ceiling"`
	SeedFile       string  `mapstructure:"inventory_seed_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOCATIONS", "dlp-main:Paris:FR:48.8674:2.7836")

	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_MAX_HISTORY", 0)
	v.SetDefault("STORE_MAX_AGE", "2160h") // 90 days

	v.SetDefault("CACHE_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("AGGREGATE_CACHE_TTL", "30s")

	v.SetDefault("FORECAST_MODEL", forecast.ModelSeasonalNaive)
	v.SetDefault("FORECAST_MIN_SAMPLES", 7)
	v.SetDefault("FORECAST_SEASON_LENGTH", 7)
	v.SetDefault("FORECAST_MAX_HORIZON", 30)

	v.SetDefault("QUERY_DEFAULT_TIMEOUT", "5s")
	v.SetDefault("QUERY_MAX_TIMEOUT", "30s")
	v.SetDefault("MOVING_AVERAGE_WINDOW", 7)

	v.SetDefault("INGEST_MAX_BATCH", 1000)
	v.SetDefault("INGEST_RATE_LIMIT", 20)
	v.SetDefault("INGEST_RATE_BURST", 40)

	v.SetDefault("WEATHER_FETCH_INTERVAL", "15m")
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("OPENWEATHER_API_KEY", "")
	v.SetDefault("WEATHERAPI_API_KEY", "")
	v.SetDefault("GEOCODER_API_KEY", "")

	v.SetDefault("RETENTION_INTERVAL", "1h")
	v.SetDefault("RECONCILE_INTERVAL", "1h")

	v.SetDefault("INVENTORY_OPTIMAL_FLOOR", 0.25)
	v.SetDefault("INVENTORY_OPTIMAL_CEILING", 0.75)
	v.SetDefault("INVENTORY_SEED_FILE", "")
}

// Load reads configuration from the environment, optionally seeded by a
// .env file in the working directory.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.L.Debugf("no .env file loaded: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &AppConfig{}
	err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Locations, err = ParseLocations(cfg.LocationsRaw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseLocations parses "id:City[:CC[:lat:lon]]" entries separated by
// commas. Coordinates spare the weather providers a geocoding lookup.
func ParseLocations(raw string) ([]kitchen.Site, error) {
	var sites []kitchen.Site
	seen := make(map[string]bool)

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) == 4 || len(parts) > 5 {
			return nil, fmt.Errorf("invalid LOCATIONS entry %q: want id:City[:CC[:lat:lon]]", entry)
		}

		site := kitchen.Site{
			ID:   strings.TrimSpace(parts[0]),
			City: strings.TrimSpace(parts[1]),
		}
		if len(parts) >= 3 {
			site.Country = strings.ToUpper(strings.TrimSpace(parts[2]))
		}
		if len(parts) == 5 {
			lat, err := parseCoordinate(parts[3], 90)
			if err != nil {
				return nil, fmt.Errorf("invalid LOCATIONS entry %q: latitude: %w", entry, err)
			}
			lon, err := parseCoordinate(parts[4], 180)
			if err != nil {
				return nil, fmt.Errorf("invalid LOCATIONS entry %q: longitude: %w", entry, err)
			}
			site.Lat, site.Lon = &lat, &lon
		}
		if site.ID == "" || site.City == "" {
			return nil, fmt.Errorf("invalid LOCATIONS entry %q: id and city are required", entry)
		}
		if seen[site.ID] {
			return nil, fmt.Errorf("duplicate location %q", site.ID)
		}
		seen[site.ID] = true
		sites = append(sites, site)
	}
	return sites, nil
}

func parseCoordinate(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || v < -limit || v > limit {
		return 0, fmt.Errorf("%v out of range [-%v, %v]", v, limit, limit)
	}
	return v, nil
}

// Validate checks cross-field constraints Load cannot express as defaults.
func (c *AppConfig) Validate() error {
	var errs []error

	if len(c.Locations) == 0 {
		errs = append(errs, errors.New("at least one location is required"))
	}
	if _, err := strconv.Atoi(c.App.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid PORT %q", c.App.Port))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if c.Cache.Backend != BackendMemory && c.Cache.Backend != BackendRedis {
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}

	if !slices.Contains(forecast.NewRegistry().Names(), c.Forecast.Model) {
		errs = append(errs, fmt.Errorf("unknown FORECAST_MODEL %q", c.Forecast.Model))
	}
	if c.Forecast.MinSamples < 1 || c.Forecast.SeasonLength < 1 || c.Forecast.MaxHorizon < 1 {
		errs = append(errs, errors.New("forecast sample, season and horizon settings must be positive"))
	}

	for name, d := range map[string]time.Duration{
		"QUERY_DEFAULT_TIMEOUT":  c.Query.DefaultTimeout,
		"QUERY_MAX_TIMEOUT":      c.Query.MaxTimeout,
		"WEATHER_FETCH_INTERVAL": c.Weather.FetchInterval,
		"HTTP_TIMEOUT":           c.Weather.HTTPTimeout,
		"RETENTION_INTERVAL":     c.Jobs.RetentionInterval,
		"RECONCILE_INTERVAL":     c.Jobs.ReconcileInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Query.MaxTimeout < c.Query.DefaultTimeout {
		errs = append(errs, errors.New("QUERY_MAX_TIMEOUT must not be below QUERY_DEFAULT_TIMEOUT"))
	}
	if c.Store.MaxAge < 0 || c.Cache.TTL < 0 {
		errs = append(errs, errors.New("STORE_MAX_AGE and AGGREGATE_CACHE_TTL must not be negative"))
	}

	if c.Ingest.MaxBatch < 1 {
		errs = append(errs, errors.New("INGEST_MAX_BATCH must be positive"))
	}
	if c.Ingest.RateLimit <= 0 || c.Ingest.RateBurst < 1 {
		errs = append(errs, errors.New("INGEST_RATE_LIMIT and INGEST_RATE_BURST must be positive"))
	}

	f, ce := c.Inventory.OptimalFloor, c.Inventory.OptimalCeiling
	if !(f > 0 && f < ce && ce < 1) {
		errs = append(errs, fmt.Errorf("inventory thresholds need 0 < floor < ceiling < 1, got %v and %v", f, ce))
	}

	return errors.Join(errs...)
}
