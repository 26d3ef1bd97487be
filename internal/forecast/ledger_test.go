package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

func issued(category string, target time.Time, predicted float64) kitchen.ForecastResult {
	return kitchen.ForecastResult{
		Location:   "dlp-main",
		Category:   category,
		TargetDate: target,
		Predicted:  predicted,
		Confidence: 0.9,
		Model:      ModelSeasonalNaive,
	}
}

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 94.1, Accuracy(85, 80))
	assert.Equal(t, 100.0, Accuracy(0, 0))
	assert.Equal(t, 0.0, Accuracy(0, 5))
	assert.Equal(t, 0.0, Accuracy(10, 40))
}

func TestLedgerReconcilesClosedBuckets(t *testing.T) {
	l := NewLedger()
	l.now = func() time.Time { return monday.Add(36 * time.Hour) }

	l.Record([]kitchen.ForecastResult{
		issued("beef", monday, 80),
		issued("beef", monday.Add(day), 90),
	}, day)

	calls := 0
	n, err := l.Reconcile(context.Background(), func(_ context.Context, key kitchen.StreamKey, r kitchen.TimeRange) (float64, bool, error) {
		calls++
		assert.Equal(t, "beef", key.Category)
		assert.Equal(t, monday, r.Start)
		assert.Equal(t, monday.Add(day), r.End)
		return 85, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)

	rep := l.Report("dlp-main", "beef")
	assert.Equal(t, 1, rep.Reconciled)
	assert.Equal(t, 1, rep.Pending)
	require.NotNil(t, rep.MeanAccuracy)
	assert.Equal(t, 94.1, *rep.MeanAccuracy)
	require.Len(t, rep.Entries, 2)
	assert.Equal(t, 85.0, *rep.Entries[0].Actual)
	assert.Nil(t, rep.Entries[1].Actual)
}

func TestLedgerLeavesEntriesWithoutActualsPending(t *testing.T) {
	l := NewLedger()
	l.now = func() time.Time { return monday.Add(10 * day) }
	l.Record([]kitchen.ForecastResult{issued("beef", monday, 80)}, day)

	n, err := l.Reconcile(context.Background(), func(context.Context, kitchen.StreamKey, kitchen.TimeRange) (float64, bool, error) {
		return 0, false, nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, l.Report("dlp-main", "").MeanAccuracy)
}

func TestLedgerReconcileStopsOnError(t *testing.T) {
	l := NewLedger()
	l.now = func() time.Time { return monday.Add(10 * day) }
	l.Record([]kitchen.ForecastResult{issued("beef", monday, 80)}, day)

	_, err := l.Reconcile(context.Background(), func(context.Context, kitchen.StreamKey, kitchen.TimeRange) (float64, bool, error) {
		return 0, false, kitchen.ErrTimeout
	})
	assert.True(t, errors.Is(err, kitchen.ErrTimeout))
}

func TestLedgerReissueReplacesPendingOnly(t *testing.T) {
	l := NewLedger()
	l.now = func() time.Time { return monday.Add(2 * day) }

	l.Record([]kitchen.ForecastResult{issued("beef", monday, 80)}, day)
	_, err := l.Reconcile(context.Background(), func(context.Context, kitchen.StreamKey, kitchen.TimeRange) (float64, bool, error) {
		return 80, true, nil
	})
	require.NoError(t, err)

	l.Record([]kitchen.ForecastResult{issued("beef", monday, 10), issued("beef", monday.Add(5*day), 70)}, day)
	l.Record([]kitchen.ForecastResult{issued("beef", monday.Add(5*day), 75)}, day)

	rep := l.Report("dlp-main", "beef")
	require.Len(t, rep.Entries, 2)
	assert.Equal(t, 80.0, rep.Entries[0].Predicted)
	assert.Equal(t, 75.0, rep.Entries[1].Predicted)
}

func TestLedgerPrune(t *testing.T) {
	l := NewLedger()
	l.Record([]kitchen.ForecastResult{
		issued("beef", monday, 1),
		issued("beef", monday.Add(3*day), 1),
	}, day)

	assert.Equal(t, 1, l.Prune(monday.Add(day)))
	assert.Len(t, l.Report("dlp-main", "").Entries, 1)
}
