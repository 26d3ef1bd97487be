package ingest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen/mocks"
	"github.com/priyankabp/stock-smart-kitchen/internal/store"
)

var sites = []kitchen.Site{
	{ID: "dlp-main", City: "Paris", Country: "FR"},
	{ID: "dlp-village", City: "Paris", Country: "FR"},
}

func qty(v float64) *float64 { return &v }

func sale(loc, cat, ts string, q float64) RawRecord {
	return RawRecord{Location: loc, Category: cat, Timestamp: ts, Quantity: qty(q)}
}

type recorder struct {
	mu  sync.Mutex
	got []kitchen.Observation
}

func (r *recorder) Publish(obs kitchen.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, obs)
}

func TestIngestPartialBatch(t *testing.T) {
	s := store.NewMemoryStore(0)
	a := NewAdapter(s, sites)

	results := a.Ingest(context.Background(), []RawRecord{
		sale("dlp-main", "Beef", "2024-06-03T12:00:00Z", 85),
		sale("dlp-main", "beef", "not-a-time", 92),
		sale("nowhere", "beef", "2024-06-03T13:00:00Z", 1),
		sale("dlp-main", "beef", "1717423200", -3),
		sale("dlp-main", "Ground Beef", "2024-06-03T14:00:00Z", 4),
	})
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}

	assert.True(t, results[0].Accepted)
	assert.NotEmpty(t, results[0].ID)

	assert.False(t, results[1].Accepted)
	require.Len(t, results[1].Errors, 1)
	assert.Equal(t, "timestamp", results[1].Errors[0].Field)

	assert.False(t, results[2].Accepted)
	require.Len(t, results[2].Errors, 1)
	assert.Equal(t, "location", results[2].Errors[0].Field)
	assert.Equal(t, kitchen.ErrUnknownLocation.Error(), results[2].Errors[0].Reason)

	assert.False(t, results[3].Accepted)
	require.Len(t, results[3].Errors, 1)
	assert.Equal(t, "quantity", results[3].Errors[0].Field)
	assert.Equal(t, "must be >= 0", results[3].Errors[0].Reason)

	assert.True(t, results[4].Accepted)

	assert.Equal(t, 1, s.Len(kitchen.StreamKey{Location: "dlp-main", Category: "beef"}))
	assert.Equal(t, 1, s.Len(kitchen.StreamKey{Location: "dlp-main", Category: "ground-beef"}))
}

func TestIngestCollectsEveryFieldError(t *testing.T) {
	a := NewAdapter(store.NewMemoryStore(0), sites)

	results := a.Ingest(context.Background(), []RawRecord{{
		Location:     "dlp-main",
		Timestamp:    "2024-06-03T12:00:00Z",
		Humidity:     qty(140),
		VisitorCount: func() *int { v := -1; return &v }(),
		Kind:         "refund",
	}})
	require.Len(t, results, 1)
	assert.False(t, results[0].Accepted)

	fields := make([]string, 0, len(results[0].Errors))
	for _, e := range results[0].Errors {
		fields = append(fields, e.Field)
	}
	assert.Subset(t, fields, []string{"category", "humidity", "visitorCount", "kind"})
}

func TestIngestRejectsNonFiniteNumbers(t *testing.T) {
	a := NewAdapter(store.NewMemoryStore(0), sites)

	inf := math.Inf(1)
	results := a.Ingest(context.Background(), []RawRecord{{
		Location:  "dlp-main",
		Category:  "beef",
		Timestamp: "2024-06-03T12:00:00Z",
		Quantity:  &inf,
	}})
	require.Len(t, results[0].Errors, 1)
	assert.Equal(t, "must be a finite number", results[0].Errors[0].Reason)
}

func TestIngestWeatherRecordUsesWeatherCategory(t *testing.T) {
	s := store.NewMemoryStore(0)
	a := NewAdapter(s, sites)

	results := a.Ingest(context.Background(), []RawRecord{{
		Location:    "dlp-main",
		Kind:        KindWeather,
		Timestamp:   "2024-06-03T12:00:00Z",
		Temperature: qty(22.5),
		Condition:   " Sunny ",
	}})
	require.True(t, results[0].Accepted, "%+v", results[0])

	key := kitchen.StreamKey{Location: "dlp-main", Category: kitchen.WeatherCategory}
	for obs, err := range s.Query(context.Background(), key, kitchen.TimeRange{
		Start: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC),
	}) {
		require.NoError(t, err)
		assert.Equal(t, kitchen.SourceWeather, obs.Source)
		assert.Equal(t, "sunny", obs.Condition)
		assert.Equal(t, 0.0, obs.Quantity)
	}
}

func TestIngestAppendsEachStreamInTimestampOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)

	var (
		mu   sync.Mutex
		seen = map[string][]time.Time{}
	)
	appender.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, obs kitchen.Observation) error {
			mu.Lock()
			defer mu.Unlock()
			seen[obs.Category] = append(seen[obs.Category], obs.Timestamp)
			return nil
		}).
		Times(6)

	a := NewAdapter(appender, sites)
	a.Ingest(context.Background(), []RawRecord{
		sale("dlp-main", "beef", "2024-06-05T00:00:00Z", 1),
		sale("dlp-main", "lettuce", "2024-06-04T00:00:00Z", 1),
		sale("dlp-main", "beef", "2024-06-03T00:00:00Z", 1),
		sale("dlp-main", "lettuce", "2024-06-03T00:00:00Z", 1),
		sale("dlp-main", "beef", "2024-06-04T00:00:00Z", 1),
		sale("dlp-main", "lettuce", "2024-06-05T00:00:00Z", 1),
	})

	for cat, ts := range seen {
		require.Len(t, ts, 3, cat)
		assert.True(t, ts[0].Before(ts[1]) && ts[1].Before(ts[2]), "%s appended out of order: %v", cat, ts)
	}
}

func TestIngestAppendFailureRejectsOnlyThatRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)

	boom := errors.New("disk full")
	appender.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, obs kitchen.Observation) error {
			if obs.Quantity == 2 {
				return boom
			}
			return nil
		}).
		Times(3)

	pub := &recorder{}
	a := NewAdapter(appender, sites)
	a.Subscribe(pub)

	results := a.Ingest(context.Background(), []RawRecord{
		sale("dlp-main", "beef", "2024-06-03T00:00:00Z", 1),
		sale("dlp-main", "beef", "2024-06-03T01:00:00Z", 2),
		sale("dlp-main", "beef", "2024-06-03T02:00:00Z", 3),
	})

	assert.True(t, results[0].Accepted)
	assert.False(t, results[1].Accepted)
	assert.Equal(t, "disk full", results[1].Error)
	assert.True(t, results[2].Accepted)
	assert.Len(t, pub.got, 2)
}

func TestIngestKeepsClientSuppliedID(t *testing.T) {
	a := NewAdapter(store.NewMemoryStore(0), sites)

	rec := sale("dlp-main", "beef", "2024-06-03T00:00:00Z", 1)
	rec.ID = "5b0b9f0e-2f52-4b8e-9a55-0a6f0c7f2d11"
	bad := sale("dlp-main", "beef", "2024-06-03T00:00:00Z", 1)
	bad.ID = "nope"

	results := a.Ingest(context.Background(), []RawRecord{rec, bad})
	assert.Equal(t, rec.ID, results[0].ID)
	require.Len(t, results[1].Errors, 1)
	assert.Equal(t, "id", results[1].Errors[0].Field)
}

func TestParseTime(t *testing.T) {
	ts, err := ParseTime("2024-06-03T14:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC), ts)

	ts, err = ParseTime("1717416000")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestIngestOldRecordStaysQueryable(t *testing.T) {
	s := store.NewMemoryStore(0)
	a := NewAdapter(s, sites)
	old := time.Now().UTC().AddDate(0, 0, -100).Truncate(time.Second)

	results := a.Ingest(context.Background(), []RawRecord{
		sale("dlp-main", "beef", old.Format(time.RFC3339), 12),
	})
	require.True(t, results[0].Accepted, "%+v", results[0])

	key := kitchen.StreamKey{Location: "dlp-main", Category: "beef"}
	n := 0
	for obs, err := range s.Query(context.Background(), key, kitchen.TimeRange{Start: old.Add(-time.Hour), End: old.Add(time.Hour)}) {
		require.NoError(t, err)
		assert.Equal(t, results[0].ID, obs.ID)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestIngestRejectsSalesIntoReservedStreams(t *testing.T) {
	s := store.NewMemoryStore(0)
	a := NewAdapter(s, sites)

	results := a.Ingest(context.Background(), []RawRecord{
		sale("dlp-main", " Weather ", "2024-06-03T12:00:00Z", 3),
		sale("dlp-main", "waste.beef", "2024-06-03T12:00:00Z", 3),
	})
	for _, r := range results {
		assert.False(t, r.Accepted)
		require.Len(t, r.Errors, 1)
		assert.Equal(t, "category", r.Errors[0].Field)
		assert.Contains(t, r.Errors[0].Reason, "reserved")
	}
	assert.Equal(t, 0, s.Len(kitchen.StreamKey{Location: "dlp-main", Category: kitchen.WeatherCategory}))
}

func TestIngestWasteRecordGoesToItsOwnStream(t *testing.T) {
	s := store.NewMemoryStore(0)
	a := NewAdapter(s, sites)

	waste := sale("dlp-main", "Beef", "2024-06-03T22:00:00Z", 2.5)
	waste.Kind = KindWaste
	waste.Cost = qty(18.75)
	noQty := RawRecord{Location: "dlp-main", Category: "beef", Kind: KindWaste, Timestamp: "2024-06-03T22:00:00Z"}
	negCost := sale("dlp-main", "beef", "2024-06-03T22:00:00Z", 1)
	negCost.Kind = KindWaste
	negCost.Cost = qty(-1)

	results := a.Ingest(context.Background(), []RawRecord{
		waste,
		sale("dlp-main", "beef", "2024-06-03T12:00:00Z", 40),
		noQty,
		negCost,
	})
	assert.True(t, results[0].Accepted, "%+v", results[0])
	assert.True(t, results[1].Accepted)
	require.Len(t, results[2].Errors, 1)
	assert.Equal(t, "quantity", results[2].Errors[0].Field)
	require.Len(t, results[3].Errors, 1)
	assert.Equal(t, "cost", results[3].Errors[0].Field)

	key := kitchen.StreamKey{Location: "dlp-main", Category: kitchen.WasteCategory("beef")}
	require.Equal(t, 1, s.Len(key))
	assert.Equal(t, 1, s.Len(kitchen.StreamKey{Location: "dlp-main", Category: "beef"}))

	for obs, err := range s.Query(context.Background(), key, kitchen.TimeRange{
		Start: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC),
	}) {
		require.NoError(t, err)
		assert.Equal(t, kitchen.SourceWaste, obs.Source)
		require.NotNil(t, obs.Cost)
		assert.Equal(t, 18.75, *obs.Cost)
	}
}
