package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/weather"
)

type coordinates struct {
	lat, lon float64
}

// GeocodeFunc resolves a city to coordinates.
type GeocodeFunc func(city, country string) (lat, lon float64, err error)

// GoogleGeocoder resolves cities through the Google Geocoding API.
func GoogleGeocoder(apiKey string) GeocodeFunc {
	return func(city, country string) (float64, float64, error) {
		geocoder.ApiKey = apiKey
		loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
		if err != nil {
			return 0, 0, err
		}
		return loc.Latitude, loc.Longitude, nil
	}
}

// OpenMeteoProvider reads current conditions from Open-Meteo, which needs
// coordinates. Sites configured without them are geocoded once.
type OpenMeteoProvider struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	geocode GeocodeFunc

	mu     sync.Mutex
	coords map[string]coordinates
}

// NewOpenMeteoProvider creates the provider. geocode may be nil when every
// site carries coordinates.
func NewOpenMeteoProvider(client *http.Client, geocode GeocodeFunc) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("openmeteo"),
		geocode: geocode,
		coords:  make(map[string]coordinates),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return "openmeteo"
}

func (p *OpenMeteoProvider) locate(site kitchen.Site) (coordinates, error) {
	if site.Lat != nil && site.Lon != nil {
		return coordinates{lat: *site.Lat, lon: *site.Lon}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.coords[site.ID]; ok {
		return c, nil
	}
	if p.geocode == nil {
		return coordinates{}, fmt.Errorf("openmeteo requires coordinates or a geocoder for %s", site.ID)
	}

	lat, lon, err := p.geocode(site.City, site.Country)
	if err != nil {
		return coordinates{}, fmt.Errorf("geocode %s: %w", site.City, err)
	}
	c := coordinates{lat: lat, lon: lon}
	p.coords[site.ID] = c
	return c, nil
}

type openMeteoPayload struct {
	Current struct {
		Time          string   `json:"time"`
		Temperature   float64  `json:"temperature_2m"`
		Humidity      *float64 `json:"relative_humidity_2m"`
		Precipitation float64  `json:"precipitation"`
		WindSpeed     float64  `json:"wind_speed_10m"`
		Pressure      float64  `json:"surface_pressure"`
		WeatherCode   int      `json:"weather_code"`
	} `json:"current"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, site kitchen.Site) (weather.ProviderReading, error) {
	c, err := p.locate(site)
	if err != nil {
		return weather.ProviderReading{}, err
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", c.lat))
	values.Set("longitude", fmt.Sprintf("%f", c.lon))
	values.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,surface_pressure,weather_code")
	values.Set("wind_speed_unit", "ms")
	values.Set("timezone", "UTC")
	u := p.baseURL + "?" + values.Encode()

	var payload openMeteoPayload
	err = fetchJSON(ctx, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		return newGet(ctx, u)
	}, &payload)
	if err != nil {
		return weather.ProviderReading{}, err
	}

	// Open-Meteo reports "2006-01-02T15:04" without seconds or zone.
	ts, err := time.Parse("2006-01-02T15:04", payload.Current.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	r := weather.ProviderReading{
		ProviderName: p.Name(),
		Timestamp:    ts.UTC(),
		TemperatureC: payload.Current.Temperature,
		WindSpeedMS:  payload.Current.WindSpeed,
		PressureHpa:  payload.Current.Pressure,
		PrecipMm:     payload.Current.Precipitation,
		Condition:    mapOpenMeteoCondition(payload.Current.WeatherCode),
	}
	if payload.Current.Humidity != nil {
		r.HumidityPct = *payload.Current.Humidity
		r.HasHumidity = true
	}
	return r, nil
}

// mapOpenMeteoCondition maps WMO weather codes.
func mapOpenMeteoCondition(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
