package weather

import (
	"context"
	"time"

	"github.com/priyankabp/stock-smart-kitchen/internal/ingest"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

// ProviderReading is a single provider's normalized reading.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	TemperatureC float64
	HumidityPct  float64
	WindSpeedMS  float64
	PressureHpa  float64
	PrecipMm     float64
	Condition    Condition

	// HasHumidity is false for providers that do not report it, so the
	// reading is left out of the humidity average.
	HasHumidity bool
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, site kitchen.Site) (ProviderReading, error)
}

// Submitter takes weather records into the time-series store.
type Submitter interface {
	Ingest(ctx context.Context, records []ingest.RawRecord) []ingest.Result
}
