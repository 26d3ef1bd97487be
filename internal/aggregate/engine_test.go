package aggregate

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen/mocks"
	"github.com/priyankabp/stock-smart-kitchen/internal/store"
)

const day = 24 * time.Hour

var (
	monday = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	beef   = kitchen.StreamKey{Location: "dlp-main", Category: "beef"}

	beefWeek = []float64{85, 92, 78, 105, 125, 145, 135}
)

func seed(t *testing.T, s kitchen.Appender, key kitchen.StreamKey, start time.Time, step time.Duration, qtys ...float64) {
	t.Helper()
	for i, q := range qtys {
		ts := start.Add(time.Duration(i) * step)
		require.NoError(t, s.Append(context.Background(), kitchen.Observation{
			ID:        key.String() + ts.Format(time.RFC3339),
			Location:  key.Location,
			Category:  key.Category,
			Timestamp: ts,
			Quantity:  q,
			Source:    kitchen.SourceSale,
		}))
	}
}

func week(start time.Time, weeks int) kitchen.TimeRange {
	return kitchen.TimeRange{Start: start, End: start.AddDate(0, 0, 7*weeks)}
}

func TestRollupBeefWeekSumsTo765(t *testing.T) {
	s := store.NewMemoryStore(0)
	seed(t, s, beef, monday, day, beefWeek...)

	e := NewEngine(s, nil, Options{})
	aggs, err := e.Rollup(context.Background(), Request{Stream: beef, Bucket: 7 * day, Range: week(monday, 1)})
	require.NoError(t, err)
	require.Len(t, aggs, 1)

	assert.True(t, decimal.NewFromInt(765).Equal(aggs[0].Sum), "sum = %s", aggs[0].Sum)
	assert.Equal(t, 7, aggs[0].Count)
	assert.Equal(t, 78.0, *aggs[0].Min)
	assert.Equal(t, 145.0, *aggs[0].Max)
	assert.Nil(t, aggs[0].Change)
}

func TestRollupDailyBucketsAndChange(t *testing.T) {
	s := store.NewMemoryStore(0)
	seed(t, s, beef, monday, day, beefWeek...)

	e := NewEngine(s, nil, Options{MovingAverageWindow: 3})
	aggs, err := e.Rollup(context.Background(), Request{Stream: beef, Bucket: day, Range: week(monday, 1)})
	require.NoError(t, err)
	require.Len(t, aggs, 7)

	for i, a := range aggs {
		assert.Equal(t, monday.Add(time.Duration(i)*day), a.BucketStart)
		assert.Equal(t, a.BucketStart.Add(day), a.BucketEnd)
		assert.True(t, decimal.NewFromFloat(beefWeek[i]).Equal(a.Sum))
	}

	assert.Nil(t, aggs[0].Change)
	require.NotNil(t, aggs[1].Change)
	assert.Equal(t, 8.24, *aggs[1].Change)

	assert.Nil(t, aggs[0].MovingAverage)
	assert.Nil(t, aggs[1].MovingAverage)
	require.NotNil(t, aggs[2].MovingAverage)
	assert.InDelta(t, (85.0+92+78)/3, *aggs[2].MovingAverage, 1e-9)
}

func TestRollupIsAdditiveAcrossAdjacentRanges(t *testing.T) {
	s := store.NewMemoryStore(0)
	qtys := []float64{1.1, 2.2, 3.3, 0.1, 0.2, 7.7, 9.9, 10.01, 0.3, 4.4, 5.5, 6.6, 0.7, 8.8}
	seed(t, s, beef, monday, day, qtys...)

	e := NewEngine(s, nil, Options{})
	ctx := context.Background()

	whole, err := e.Rollup(ctx, Request{Stream: beef, Bucket: 14 * day, Range: week(monday, 2)})
	require.NoError(t, err)
	first, err := e.Rollup(ctx, Request{Stream: beef, Bucket: 7 * day, Range: week(monday, 1)})
	require.NoError(t, err)
	second, err := e.Rollup(ctx, Request{Stream: beef, Bucket: 7 * day, Range: week(monday.AddDate(0, 0, 7), 1)})
	require.NoError(t, err)

	require.Len(t, whole, 1)
	assert.True(t, whole[0].Sum.Equal(first[0].Sum.Add(second[0].Sum)))
	assert.Equal(t, whole[0].Count, first[0].Count+second[0].Count)
}

func TestRollupEmptyRangeReturnsEmptySlice(t *testing.T) {
	s := store.NewMemoryStore(0)
	seed(t, s, beef, monday, day, beefWeek...)
	e := NewEngine(s, nil, Options{})

	aggs, err := e.Rollup(context.Background(), Request{Stream: beef, Bucket: day, Range: week(monday.AddDate(1, 0, 0), 1)})
	require.NoError(t, err)
	assert.NotNil(t, aggs)
	assert.Empty(t, aggs)

	aggs, err = e.Rollup(context.Background(), Request{Stream: beef, Bucket: day, Range: kitchen.TimeRange{Start: monday, End: monday}})
	require.NoError(t, err)
	assert.Empty(t, aggs)
}

func TestRollupEmitsEmptyBucketsInsideData(t *testing.T) {
	s := store.NewMemoryStore(0)
	seed(t, s, beef, monday, 2*day, 10, 20)
	e := NewEngine(s, nil, Options{})

	aggs, err := e.Rollup(context.Background(), Request{Stream: beef, Bucket: day, Range: kitchen.TimeRange{Start: monday, End: monday.Add(3 * day)}})
	require.NoError(t, err)
	require.Len(t, aggs, 3)

	assert.Equal(t, 0, aggs[1].Count)
	assert.Nil(t, aggs[1].Mean)
	assert.True(t, aggs[1].Sum.IsZero())
	// Previous bucket sum is zero.
	assert.Nil(t, aggs[2].Change)
}

func TestRollupClipsLastBucket(t *testing.T) {
	s := store.NewMemoryStore(0)
	seed(t, s, beef, monday, day, beefWeek...)
	e := NewEngine(s, nil, Options{})

	r := kitchen.TimeRange{Start: monday, End: monday.Add(5 * day)}
	aggs, err := e.Rollup(context.Background(), Request{Stream: beef, Bucket: 2 * day, Range: r})
	require.NoError(t, err)
	require.Len(t, aggs, 3)
	assert.Equal(t, r.End, aggs[2].BucketEnd)
	assert.Equal(t, 1, aggs[2].Count)
}

func TestRollupRejectsBadRequests(t *testing.T) {
	e := NewEngine(store.NewMemoryStore(0), nil, Options{MaxBuckets: 10})
	ctx := context.Background()

	_, err := e.Rollup(ctx, Request{Stream: beef, Bucket: 0, Range: week(monday, 1)})
	assert.ErrorIs(t, err, kitchen.ErrInvalidRange)

	_, err = e.Rollup(ctx, Request{Stream: beef, Bucket: day, Range: kitchen.TimeRange{Start: monday, End: monday.Add(-day)}})
	assert.ErrorIs(t, err, kitchen.ErrInvalidRange)

	_, err = e.Rollup(ctx, Request{Stream: beef, Bucket: time.Hour, Range: week(monday, 1)})
	assert.ErrorIs(t, err, kitchen.ErrInvalidRange)
}

func TestRollupDeadlineSurfacesAsTimeout(t *testing.T) {
	s := store.NewMemoryStore(0)
	seed(t, s, beef, monday, day, beefWeek...)
	e := NewEngine(s, nil, Options{})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	aggs, err := e.Rollup(ctx, Request{Stream: beef, Bucket: day, Range: week(monday, 1)})
	assert.ErrorIs(t, err, kitchen.ErrTimeout)
	assert.Nil(t, aggs)
}

func TestRollupCancellationIsNotTimeout(t *testing.T) {
	s := store.NewMemoryStore(0)
	seed(t, s, beef, monday, day, beefWeek...)
	e := NewEngine(s, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Rollup(ctx, Request{Stream: beef, Bucket: day, Range: week(monday, 1)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, kitchen.ErrTimeout)
}

func seqOf(obs ...kitchen.Observation) iter.Seq2[kitchen.Observation, error] {
	return func(yield func(kitchen.Observation, error) bool) {
		for _, o := range obs {
			if !yield(o, nil) {
				return
			}
		}
	}
}

func TestRollupServesRepeatsFromCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)

	obs := kitchen.Observation{Location: beef.Location, Category: beef.Category, Timestamp: monday, Quantity: 4}
	reader.EXPECT().
		Query(gomock.Any(), beef, week(monday, 1)).
		Return(seqOf(obs)).
		Times(1)

	e := NewEngine(reader, NewMemoryCache(), Options{CacheTTL: time.Minute})
	req := Request{Stream: beef, Bucket: 7 * day, Range: week(monday, 1)}

	first, err := e.Rollup(context.Background(), req)
	require.NoError(t, err)
	second, err := e.Rollup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRollupWithoutTTLSkipsCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)

	reader.EXPECT().
		Query(gomock.Any(), beef, gomock.Any()).
		Return(seqOf()).
		Times(2)

	cache := NewMemoryCache()
	e := NewEngine(reader, cache, Options{})
	req := Request{Stream: beef, Bucket: 7 * day, Range: week(monday, 1)}

	_, err := e.Rollup(context.Background(), req)
	require.NoError(t, err)
	_, err = e.Rollup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestRollupTotalsRevenueCostAndVisitors(t *testing.T) {
	s := store.NewMemoryStore(0)
	ctx := context.Background()
	money := func(v float64) *float64 { return &v }
	people := func(v int) *int { return &v }

	for i, o := range []kitchen.Observation{
		{Quantity: 10, Revenue: money(120.5), VisitorCount: people(40)},
		{Quantity: 5, Revenue: money(60.25), VisitorCount: people(20)},
		{Quantity: 2, Cost: money(7.1)},
	} {
		o.ID = beef.String() + string(rune('a'+i))
		o.Location, o.Category = beef.Location, beef.Category
		o.Timestamp = monday.Add(time.Duration(i+9) * time.Hour)
		o.Source = kitchen.SourceSale
		require.NoError(t, s.Append(ctx, o))
	}
	seed(t, s, beef, monday.Add(day), day, 1)

	aggs, err := NewEngine(s, nil, Options{}).Rollup(ctx, Request{Stream: beef, Bucket: day, Range: kitchen.TimeRange{Start: monday, End: monday.Add(2 * day)}})
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	require.NotNil(t, aggs[0].RevenueSum)
	assert.Equal(t, "180.75", aggs[0].RevenueSum.String())
	require.NotNil(t, aggs[0].CostSum)
	assert.Equal(t, "7.1", aggs[0].CostSum.String())
	require.NotNil(t, aggs[0].MeanVisitors)
	assert.Equal(t, 30.0, *aggs[0].MeanVisitors)

	assert.Nil(t, aggs[1].RevenueSum)
	assert.Nil(t, aggs[1].CostSum)
	assert.Nil(t, aggs[1].MeanVisitors)
}
