package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/weather"
)

// OpenWeatherProvider reads current conditions from OpenWeatherMap.
type OpenWeatherProvider struct {
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("openweathermap"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return "openweathermap"
}

type openWeatherPayload struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64  `json:"temp"`
		Humidity *float64 `json:"humidity"`
		Pressure float64  `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
	Snow struct {
		OneH float64 `json:"1h"`
	} `json:"snow"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, site kitchen.Site) (weather.ProviderReading, error) {
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("openweathermap: %w", errMissingAPIKey)
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	if site.Lat != nil && site.Lon != nil {
		values.Set("lat", fmt.Sprintf("%f", *site.Lat))
		values.Set("lon", fmt.Sprintf("%f", *site.Lon))
	} else {
		values.Set("q", cityQuery(site))
	}
	u := p.baseURL + "?" + values.Encode()

	var payload openWeatherPayload
	err := fetchJSON(ctx, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		return newGet(ctx, u)
	}, &payload)
	if err != nil {
		return weather.ProviderReading{}, err
	}

	precip := payload.Rain.OneH
	if precip == 0 {
		precip = payload.Rain.ThreeH / 3
	}
	precip += payload.Snow.OneH

	r := weather.ProviderReading{
		ProviderName: p.Name(),
		Timestamp:    unixOrNow(payload.Dt),
		TemperatureC: payload.Main.Temp,
		WindSpeedMS:  payload.Wind.Speed,
		PressureHpa:  payload.Main.Pressure,
		PrecipMm:     precip,
		Condition:    weather.ConditionUnknown,
	}
	if payload.Main.Humidity != nil {
		r.HumidityPct = *payload.Main.Humidity
		r.HasHumidity = true
	}
	if len(payload.Weather) > 0 {
		r.Condition = mapOpenWeatherCondition(payload.Weather[0].Main)
	}
	return r, nil
}

func mapOpenWeatherCondition(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm", "Squall", "Tornado":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}

// cityQuery formats a site as the "city,country" query both keyed providers accept.
func cityQuery(site kitchen.Site) string {
	if site.Country == "" {
		return site.City
	}
	return site.City + "," + site.Country
}
