package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

const (
	defaultMaxBuckets = 5000
	rollupVersion     = "v2"
)

var hundred = decimal.NewFromInt(100)

// Request selects one stream, a bucket width and a half-open range.
type Request struct {
	Stream kitchen.StreamKey
	Bucket time.Duration
	Range  kitchen.TimeRange
}

// Options tunes the engine.
type Options struct {
	// CacheTTL bounds how stale a cached rollup may be. Zero disables caching.
	CacheTTL time.Duration

	// MovingAverageWindow is the number of trailing buckets averaged into
	// Aggregate.MovingAverage. Zero or one disables it.
	MovingAverageWindow int

	// MaxBuckets caps how many buckets a single rollup may produce.
	MaxBuckets int
}

// Engine computes rollups on demand from a store reader.
type Engine struct {
	reader kitchen.Reader
	cache  Cache
	opts   Options
}

// NewEngine creates an Engine. cache may be nil.
func NewEngine(reader kitchen.Reader, cache Cache, opts Options) *Engine {
	if opts.MaxBuckets <= 0 {
		opts.MaxBuckets = defaultMaxBuckets
	}
	return &Engine{
		reader: reader,
		cache:  cache,
		opts:   opts,
	}
}

// Rollup returns one Aggregate per bucket of req.Range, oldest first.
//
// Buckets are aligned to req.Range.Start and half-open, the last one clipped
// to req.Range.End. A range holding no observations yields an empty slice.
// The context is checked between buckets; a deadline surfaces as
// kitchen.ErrTimeout and no partial result is returned.
func (e *Engine) Rollup(ctx context.Context, req Request) ([]kitchen.Aggregate, error) {
	n, err := e.bucketCount(req)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []kitchen.Aggregate{}, nil
	}

	key := cacheKey(req, e.opts.MovingAverageWindow)
	if e.cache != nil && e.opts.CacheTTL > 0 {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			log.ForContext(ctx).WithError(err).Warn("aggregate cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	aggs, err := e.compute(ctx, req, n)
	if err != nil {
		return nil, err
	}

	if e.cache != nil && e.opts.CacheTTL > 0 {
		if err := e.cache.Set(ctx, key, aggs, e.opts.CacheTTL); err != nil {
			log.ForContext(ctx).WithError(err).Warn("aggregate cache write failed")
		}
	}
	return aggs, nil
}

// Observed reports whether key holds any observation inside r.
func (e *Engine) Observed(ctx context.Context, key kitchen.StreamKey, r kitchen.TimeRange) (bool, error) {
	for _, err := range e.reader.Query(ctx, key, r) {
		if err != nil {
			return false, timeoutOr(err)
		}
		return true, nil
	}
	return false, nil
}

func (e *Engine) bucketCount(req Request) (int, error) {
	if req.Bucket <= 0 {
		return 0, fmt.Errorf("%w: bucket size must be positive", kitchen.ErrInvalidRange)
	}
	if req.Range.End.Before(req.Range.Start) {
		return 0, fmt.Errorf("%w: end before start", kitchen.ErrInvalidRange)
	}
	if req.Range.Empty() {
		return 0, nil
	}

	span := req.Range.End.Sub(req.Range.Start)
	n := int64(span / req.Bucket)
	if span%req.Bucket != 0 {
		n++
	}
	if n > int64(e.opts.MaxBuckets) {
		return 0, fmt.Errorf("%w: %d buckets exceeds limit of %d", kitchen.ErrInvalidRange, n, e.opts.MaxBuckets)
	}
	return int(n), nil
}

type bucket struct {
	count    int
	sum      decimal.Decimal
	min, max float64
	tempSum  float64
	tempN    int

	revenue, cost decimal.Decimal
	revN, costN   int
	visitors      int
	visitorN      int
}

func (e *Engine) compute(ctx context.Context, req Request, n int) ([]kitchen.Aggregate, error) {
	buckets := make([]bucket, n)
	total := 0
	current := -1

	for obs, err := range e.reader.Query(ctx, req.Stream, req.Range) {
		if err != nil {
			return nil, timeoutOr(err)
		}

		i := int(obs.Timestamp.Sub(req.Range.Start) / req.Bucket)
		if i < 0 || i >= n {
			continue
		}
		if i != current {
			if err := ctx.Err(); err != nil {
				return nil, timeoutOr(err)
			}
			current = i
		}

		b := &buckets[i]
		if b.count == 0 || obs.Quantity < b.min {
			b.min = obs.Quantity
		}
		if b.count == 0 || obs.Quantity > b.max {
			b.max = obs.Quantity
		}
		b.count++
		b.sum = b.sum.Add(decimal.NewFromFloat(obs.Quantity))
		if obs.Temperature != nil {
			b.tempSum += *obs.Temperature
			b.tempN++
		}
		if obs.Revenue != nil {
			b.revenue = b.revenue.Add(decimal.NewFromFloat(*obs.Revenue))
			b.revN++
		}
		if obs.Cost != nil {
			b.cost = b.cost.Add(decimal.NewFromFloat(*obs.Cost))
			b.costN++
		}
		if obs.VisitorCount != nil {
			b.visitors += *obs.VisitorCount
			b.visitorN++
		}
		total++
	}

	if total == 0 {
		return []kitchen.Aggregate{}, nil
	}

	out := make([]kitchen.Aggregate, 0, n)
	for i := range buckets {
		if err := ctx.Err(); err != nil {
			return nil, timeoutOr(err)
		}

		b := buckets[i]
		start := req.Range.Start.Add(time.Duration(i) * req.Bucket)
		end := start.Add(req.Bucket)
		if end.After(req.Range.End) {
			end = req.Range.End
		}

		agg := kitchen.Aggregate{
			Location:    req.Stream.Location,
			Category:    req.Stream.Category,
			BucketStart: start,
			BucketEnd:   end,
			Count:       b.count,
			Sum:         b.sum,
		}
		if b.count > 0 {
			agg.Min = ptr(b.min)
			agg.Max = ptr(b.max)
			agg.Mean = ptr(b.sum.Div(decimal.NewFromInt(int64(b.count))).InexactFloat64())
		}
		if b.tempN > 0 {
			agg.MeanTemperature = ptr(b.tempSum / float64(b.tempN))
		}
		if b.revN > 0 {
			agg.RevenueSum = &b.revenue
		}
		if b.costN > 0 {
			agg.CostSum = &b.cost
		}
		if b.visitorN > 0 {
			agg.MeanVisitors = ptr(float64(b.visitors) / float64(b.visitorN))
		}
		if i > 0 {
			agg.Change = percentChange(buckets[i-1].sum, b.sum)
		}
		agg.MovingAverage = movingAverage(buckets, i, e.opts.MovingAverageWindow)

		out = append(out, agg)
	}
	return out, nil
}

// percentChange is nil when prev is zero; there is no honest percentage then.
func percentChange(prev, cur decimal.Decimal) *float64 {
	if prev.IsZero() {
		return nil
	}
	change := cur.Sub(prev).Div(prev).Mul(hundred).Round(2)
	return ptr(change.InexactFloat64())
}

func movingAverage(buckets []bucket, i, window int) *float64 {
	if window <= 1 || i+1 < window {
		return nil
	}
	sum := decimal.Zero
	for j := i - window + 1; j <= i; j++ {
		sum = sum.Add(buckets[j].sum)
	}
	return ptr(sum.Div(decimal.NewFromInt(int64(window))).InexactFloat64())
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", kitchen.ErrTimeout, err)
	}
	return err
}

func cacheKey(req Request, window int) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%d|%s",
		req.Stream.Location,
		req.Stream.Category,
		req.Bucket,
		req.Range.Start.UnixNano(),
		req.Range.End.UnixNano(),
		window,
		rollupVersion,
	)
}

func ptr(v float64) *float64 {
	return &v
}
