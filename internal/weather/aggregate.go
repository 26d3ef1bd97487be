package weather

import (
	"time"
)

// AggregateReadings combines provider readings into one Snapshot.
// Numeric fields are averaged over the readings that carry them; the
// condition is the most reported one, ties going to the earliest reported.
func AggregateReadings(siteID string, readings []ProviderReading, now time.Time) Snapshot {
	snap := Snapshot{
		SiteID:    siteID,
		Condition: ConditionUnknown,
	}
	if len(readings) == 0 {
		snap.Timestamp = now.UTC()
		return snap
	}

	var (
		sumTemp     float64
		sumWind     float64
		sumPressure float64
		sumPrecip   float64
		sumHumidity float64
		humidityN   int
		newest      time.Time
	)
	counts := make(map[Condition]int)
	order := make([]Condition, 0, len(readings))

	for _, r := range readings {
		sumTemp += r.TemperatureC
		sumWind += r.WindSpeedMS
		sumPressure += r.PressureHpa
		sumPrecip += r.PrecipMm
		if r.HasHumidity {
			sumHumidity += r.HumidityPct
			humidityN++
		}

		if _, seen := counts[r.Condition]; !seen {
			order = append(order, r.Condition)
		}
		counts[r.Condition]++

		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
		snap.Providers = append(snap.Providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp,
		})
	}

	n := float64(len(readings))
	snap.Temperature = sumTemp / n
	snap.WindSpeed = sumWind / n
	snap.Pressure = sumPressure / n
	snap.PrecipMM = sumPrecip / n
	if humidityN > 0 {
		snap.Humidity = sumHumidity / float64(humidityN)
	}

	best := 0
	for _, c := range order {
		if c == ConditionUnknown && len(order) > 1 {
			continue
		}
		if counts[c] > best {
			best = counts[c]
			snap.Condition = c
		}
	}

	if newest.IsZero() {
		newest = now
	}
	snap.Timestamp = newest.UTC()
	return snap
}
