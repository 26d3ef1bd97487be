package ingest

import (
	"errors"
	"strconv"
	"time"
)

// Record kinds.
const (
	KindSale    = "sale"
	KindWeather = "weather"
	KindWaste   = "waste"
)

// RawRecord is one untrusted input record as posted by a point-of-sale
// export or kitchen waste log, or produced by the weather sync.
type RawRecord struct {
	// ID is optional. When set, stores that deduplicate use it so a client
	// can safely resend a batch.
	ID string `json:"id,omitempty" validate:"omitempty,uuid"`

	Location  string `json:"location" validate:"required"`
	Category  string `json:"category" validate:"required_unless=Kind weather,max=64"`
	Kind      string `json:"kind,omitempty" validate:"omitempty,oneof=sale weather waste"`
	Timestamp string `json:"timestamp" validate:"required"`

	Quantity *float64 `json:"quantity" validate:"omitempty,gte=0"`
	Revenue  *float64 `json:"revenue,omitempty" validate:"omitempty,gte=0"`
	Cost     *float64 `json:"cost,omitempty" validate:"omitempty,gte=0"`

	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=-90,lte=60"`
	Humidity     *float64 `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	WindSpeed    *float64 `json:"windSpeed,omitempty" validate:"omitempty,gte=0"`
	VisitorCount *int     `json:"visitorCount,omitempty" validate:"omitempty,gte=0"`
	Condition    string   `json:"condition,omitempty" validate:"max=32"`
}

func (r RawRecord) kind() string {
	if r.Kind == "" {
		return KindSale
	}
	return r.Kind
}

// ParseTime accepts RFC3339 (with or without fractional seconds) or unix seconds.
func ParseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
