package forecast

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

// Entry is an issued forecast, later paired with what actually happened.
type Entry struct {
	kitchen.ForecastResult

	Bucket   time.Duration `json:"-"`
	IssuedAt time.Time     `json:"issuedAt"`

	Actual   *float64 `json:"actual"`
	Accuracy *float64 `json:"accuracy"` // percent
}

// Reconciled reports whether the actual is known.
func (e Entry) Reconciled() bool {
	return e.Actual != nil
}

// ActualsFunc returns the observed total of key over r. ok is false when
// nothing has been observed for the range yet.
type ActualsFunc func(ctx context.Context, key kitchen.StreamKey, r kitchen.TimeRange) (total float64, ok bool, err error)

// AccuracyReport summarises forecast quality for a location, optionally
// narrowed to one category.
type AccuracyReport struct {
	Location     string   `json:"location"`
	Category     string   `json:"category,omitempty"`
	Reconciled   int      `json:"reconciled"`
	Pending      int      `json:"pending"`
	MeanAccuracy *float64 `json:"meanAccuracy"`
	Entries      []Entry  `json:"entries"`
}

type ledgerKey struct {
	location string
	category string
	target   int64
}

// Ledger remembers issued forecasts so their accuracy can be measured once
// the target bucket has closed. A forecast re-issued for the same target
// replaces the earlier one.
type Ledger struct {
	mu      sync.Mutex
	entries map[ledgerKey]*Entry
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[ledgerKey]*Entry),
		now:     time.Now,
	}
}

// Record stores forecasts covering buckets of width bucket.
func (l *Ledger) Record(results []kitchen.ForecastResult, bucket time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	issued := l.now().UTC()
	for _, r := range results {
		k := ledgerKey{location: r.Location, category: r.Category, target: r.TargetDate.UnixNano()}
		if e, ok := l.entries[k]; ok && e.Reconciled() {
			continue
		}
		l.entries[k] = &Entry{ForecastResult: r, Bucket: bucket, IssuedAt: issued}
	}
}

// Reconcile fills in actuals for every entry whose bucket has closed and
// returns how many were reconciled.
func (l *Ledger) Reconcile(ctx context.Context, actuals ActualsFunc) (int, error) {
	now := l.now()

	l.mu.Lock()
	due := make([]*Entry, 0)
	for _, e := range l.entries {
		if !e.Reconciled() && !e.TargetDate.Add(e.Bucket).After(now) {
			due = append(due, e)
		}
	}
	l.mu.Unlock()

	done := 0
	for _, e := range due {
		key := kitchen.StreamKey{Location: e.Location, Category: e.Category}
		r := kitchen.TimeRange{Start: e.TargetDate, End: e.TargetDate.Add(e.Bucket)}

		total, ok, err := actuals(ctx, key, r)
		if err != nil {
			return done, err
		}
		if !ok {
			continue
		}

		acc := Accuracy(total, e.Predicted)
		l.mu.Lock()
		e.Actual = &total
		e.Accuracy = &acc
		l.mu.Unlock()
		done++
	}

	if done > 0 {
		log.ForContext(ctx).WithField("reconciled", done).Info("forecast ledger reconciled")
	}
	return done, nil
}

// Report returns the ledger entries for location (and category, if set),
// oldest target first.
func (l *Ledger) Report(location, category string) AccuracyReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep := AccuracyReport{Location: location, Category: category, Entries: []Entry{}}
	var accSum float64
	for _, e := range l.entries {
		if e.Location != location || (category != "" && e.Category != category) {
			continue
		}
		if e.Reconciled() {
			rep.Reconciled++
			accSum += *e.Accuracy
		} else {
			rep.Pending++
		}
		rep.Entries = append(rep.Entries, *e)
	}

	if rep.Reconciled > 0 {
		mean := math.Round(accSum/float64(rep.Reconciled)*10) / 10
		rep.MeanAccuracy = &mean
	}
	slices.SortFunc(rep.Entries, func(a, b Entry) int {
		if c := a.TargetDate.Compare(b.TargetDate); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return rep
}

// Prune forgets entries targeting buckets before before.
func (l *Ledger) Prune(before time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if e.TargetDate.Before(before) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Accuracy scores a prediction against the actual as a percentage in
// [0,100]. A zero actual only scores when the prediction was zero too.
func Accuracy(actual, predicted float64) float64 {
	if actual == 0 {
		if predicted == 0 {
			return 100
		}
		return 0
	}
	acc := 100 * (1 - math.Abs(actual-predicted)/math.Abs(actual))
	return math.Round(math.Max(0, acc)*10) / 10
}
