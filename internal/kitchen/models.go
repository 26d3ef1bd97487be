package kitchen

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source tells where an observation came from.
type Source string

const (
	SourceSale    Source = "sale"
	SourceWeather Source = "weather"
	SourceWaste   Source = "waste"
)

// WeatherCategory is the category under which weather observations are stored.
const WeatherCategory = "weather"

const wastePrefix = "waste."

// WasteCategory returns the stream category holding waste of an ingredient,
// kept apart from the sales stream of the same name.
func WasteCategory(category string) string {
	return wastePrefix + category
}

// ReservedCategory reports whether category names a stream that sales may
// not write to.
func ReservedCategory(category string) bool {
	return category == WeatherCategory || strings.HasPrefix(category, wastePrefix)
}

// Site is a configured restaurant location. ID is what records reference;
// City/Country are used for weather lookups.
type Site struct {
	ID      string   `json:"id"`
	City    string   `json:"city"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// StreamKey identifies one append-only stream of observations.
type StreamKey struct {
	Location string `json:"location"`
	Category string `json:"category"`
}

// String returns a canonical key for indexing this stream in stores and caches.
func (k StreamKey) String() string {
	return k.Location + ":" + k.Category
}

// NormalizeCategory lower-cases and trims a category name and replaces
// inner whitespace with dashes, so "Ground Beef" and "ground-beef" share a stream.
func NormalizeCategory(c string) string {
	return strings.Join(strings.Fields(strings.ToLower(c)), "-")
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"from"`
	End   time.Time `json:"to"`
}

// Contains reports whether t falls inside [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Empty reports whether the range covers no instant at all.
func (r TimeRange) Empty() bool {
	return !r.Start.Before(r.End)
}

// Observation is a single immutable recorded fact.
type Observation struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"` // always UTC
	Quantity  float64   `json:"quantity"`
	Source    Source    `json:"source"`

	Revenue      *float64 `json:"revenue,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`
	Temperature  *float64 `json:"temperatureC,omitempty"`
	Humidity     *float64 `json:"humidityPercent,omitempty"`
	WindSpeed    *float64 `json:"windSpeed,omitempty"`
	VisitorCount *int     `json:"visitorCount,omitempty"`
	Condition    string   `json:"condition,omitempty"`

	ReceivedAt time.Time `json:"receivedAt"`
}

// Stream returns the stream the observation belongs to.
func (o Observation) Stream() StreamKey {
	return StreamKey{Location: o.Location, Category: o.Category}
}

// Aggregate is a derived rollup over one bucket of observations.
// It is a cache entry, never authoritative state.
type Aggregate struct {
	Location    string          `json:"location"`
	Category    string          `json:"category"`
	BucketStart time.Time       `json:"bucketStart"`
	BucketEnd   time.Time       `json:"bucketEnd"`
	Count       int             `json:"count"`
	Sum         decimal.Decimal `json:"sum"`
	Min         *float64        `json:"min"`
	Max         *float64        `json:"max"`
	Mean        *float64        `json:"mean"`

	// Change is the percentage change of Sum against the previous bucket.
	// Nil for the first bucket of a range or when the previous sum is zero.
	Change *float64 `json:"change"`

	// MovingAverage is the mean of the trailing window of bucket sums,
	// nil until the window is full.
	MovingAverage *float64 `json:"movingAverage"`

	MeanTemperature *float64 `json:"meanTemperature,omitempty"`

	// RevenueSum and CostSum total the money fields of the bucket; nil when
	// no observation in it carried one.
	RevenueSum   *decimal.Decimal `json:"revenueSum,omitempty"`
	CostSum      *decimal.Decimal `json:"costSum,omitempty"`
	MeanVisitors *float64         `json:"meanVisitors,omitempty"`
}

// ForecastResult is a single predicted future value.
type ForecastResult struct {
	Location   string    `json:"location"`
	Category   string    `json:"category"`
	TargetDate time.Time `json:"targetDate"`
	Predicted  float64   `json:"predicted"`
	Confidence float64   `json:"confidence"` // in [0,1]
	Model      string    `json:"model"`
}
