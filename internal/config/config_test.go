package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOCATIONS", "dlp-main:Paris:fr")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 90*24*time.Hour, cfg.Store.MaxAge)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "seasonal_naive", cfg.Forecast.Model)
	assert.Equal(t, 15*time.Minute, cfg.Weather.FetchInterval)
	assert.Equal(t, 0.25, cfg.Inventory.OptimalFloor)
	assert.Equal(t, []kitchen.Site{{ID: "dlp-main", City: "Paris", Country: "FR"}}, cfg.Locations)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOCATIONS", "dlp-main:Paris:FR, lis-1:Lisbon:PT")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/kitchen")
	t.Setenv("AGGREGATE_CACHE_TTL", "2m")
	t.Setenv("FORECAST_MODEL", "ensemble")
	t.Setenv("INGEST_MAX_BATCH", "50")
	t.Setenv("INGEST_RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "ensemble", cfg.Forecast.Model)
	assert.Equal(t, 50, cfg.Ingest.MaxBatch)
	assert.Equal(t, 2.5, cfg.Ingest.RateLimit)
	require.Len(t, cfg.Locations, 2)
	assert.Equal(t, "lis-1", cfg.Locations[1].ID)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := map[string]map[string]string{
		"no locations":      {"LOCATIONS": " "},
		"postgres no url":   {"STORE_BACKEND": "postgres"},
		"unknown cache":     {"CACHE_BACKEND": "memcached"},
		"unknown model":     {"FORECAST_MODEL": "prophet"},
		"bad duration":      {"QUERY_DEFAULT_TIMEOUT": "soon"},
		"inverted timeouts": {"QUERY_DEFAULT_TIMEOUT": "1m", "QUERY_MAX_TIMEOUT": "10s"},
		"thresholds":        {"INVENTORY_OPTIMAL_FLOOR": "0.8", "INVENTORY_OPTIMAL_CEILING": "0.5"},
		"port":              {"PORT": "http"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("LOCATIONS", "dlp-main:Paris:FR")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLocations(t *testing.T) {
	sites, err := ParseLocations("a:Paris, b:Lisbon:pt,")
	require.NoError(t, err)
	assert.Equal(t, []kitchen.Site{
		{ID: "a", City: "Paris"},
		{ID: "b", City: "Lisbon", Country: "PT"},
	}, sites)

	_, err = ParseLocations("a:Paris,a:Lyon")
	assert.Error(t, err)

	_, err = ParseLocations("justanid")
	assert.Error(t, err)
}

func TestParseLocationsWithCoordinates(t *testing.T) {
	sites, err := ParseLocations("dlp-main:Paris:FR:48.8674:2.7836, lis-1:Lisbon:PT")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.NotNil(t, sites[0].Lat)
	require.NotNil(t, sites[0].Lon)
	assert.Equal(t, 48.8674, *sites[0].Lat)
	assert.Equal(t, 2.7836, *sites[0].Lon)
	assert.Nil(t, sites[1].Lat)

	for _, bad := range []string{
		"a:Paris:FR:48.8",
		"a:Paris:FR:north:2.3",
		"a:Paris:FR:91:2.3",
		"a:Paris:FR:48.8:181",
		"a:Paris:FR:48.8:2.3:extra",
	} {
		_, err := ParseLocations(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultLocationCarriesCoordinates(t *testing.T) {
	t.Setenv("LOCATIONS", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Locations, 1)
	assert.NotNil(t, cfg.Locations[0].Lat)
	assert.NotNil(t, cfg.Locations[0].Lon)
}
