package aggregate

import (
	"context"
	"math"
	"time"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

const minCorrelationPairs = 3

// Correlation relates a category's demand to the weather at the same location.
// A coefficient is nil when fewer than three buckets pair up or a side is constant.
type Correlation struct {
	Location      string             `json:"location"`
	Category      string             `json:"category"`
	Range         kitchen.TimeRange  `json:"range"`
	Bucket        string             `json:"bucket"`
	Pairs         int                `json:"pairs"`
	Temperature   *float64           `json:"temperature"`
	Precipitation *float64           `json:"precipitation"`
	Buckets       []CorrelationPoint `json:"buckets"`
}

// CorrelationPoint is one bucket of demand next to the weather it saw.
type CorrelationPoint struct {
	BucketStart   time.Time `json:"bucketStart"`
	Demand        float64   `json:"demand"`
	Temperature   *float64  `json:"temperature"`
	Precipitation *float64  `json:"precipitation"`
}

// Correlate computes Pearson coefficients between req.Stream's bucket sums
// and the location's weather stream over the same buckets.
func (e *Engine) Correlate(ctx context.Context, req Request) (*Correlation, error) {
	demand, err := e.Rollup(ctx, req)
	if err != nil {
		return nil, err
	}

	wreq := req
	wreq.Stream = kitchen.StreamKey{Location: req.Stream.Location, Category: kitchen.WeatherCategory}
	weather, err := e.Rollup(ctx, wreq)
	if err != nil {
		return nil, err
	}

	out := &Correlation{
		Location: req.Stream.Location,
		Category: req.Stream.Category,
		Range:    req.Range,
		Bucket:   req.Bucket.String(),
		Buckets:  []CorrelationPoint{},
	}
	if len(demand) == 0 || len(weather) == 0 {
		return out, nil
	}

	var temps, tempDemand, precips, precipDemand []float64
	for i := range min(len(demand), len(weather)) {
		d := demand[i].Sum.InexactFloat64()
		w := weather[i]
		point := CorrelationPoint{
			BucketStart:   demand[i].BucketStart,
			Demand:        d,
			Temperature:   w.MeanTemperature,
			Precipitation: w.Mean,
		}
		if w.MeanTemperature != nil {
			temps = append(temps, *w.MeanTemperature)
			tempDemand = append(tempDemand, d)
		}
		if w.Mean != nil {
			precips = append(precips, *w.Mean)
			precipDemand = append(precipDemand, d)
		}
		out.Buckets = append(out.Buckets, point)
	}

	out.Pairs = max(len(temps), len(precips))
	out.Temperature = pearson(tempDemand, temps)
	out.Precipitation = pearson(precipDemand, precips)
	return out, nil
}

func pearson(xs, ys []float64) *float64 {
	n := len(xs)
	if n < minCorrelationPairs || n != len(ys) {
		return nil
	}

	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var cov, vx, vy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return nil
	}

	r := cov / math.Sqrt(vx*vy)
	r = math.Max(-1, math.Min(1, r))
	return ptr(math.Round(r*1000) / 1000)
}
