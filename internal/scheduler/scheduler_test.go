package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

type countingSyncer struct {
	calls atomic.Int32
	ok    int
}

func (c *countingSyncer) SyncAll(ctx context.Context, sites []kitchen.Site) int {
	c.calls.Add(1)
	return c.ok
}

type fakePruner struct {
	before time.Time
	err    error
}

func (f *fakePruner) Prune(ctx context.Context, before time.Time) (int, error) {
	f.before = before
	return 3, f.err
}

type fakeLedger struct{ calls int }

func (f *fakeLedger) Prune(before time.Time) int {
	f.calls++
	return 1
}

type sweeperFunc func() int

func (f sweeperFunc) Sweep() int { return f() }

type reconcilerFunc func(ctx context.Context) (int, error)

func (f reconcilerFunc) Reconcile(ctx context.Context) (int, error) { return f(ctx) }

func TestSchedulerRunsJobsImmediately(t *testing.T) {
	syncer := &countingSyncer{ok: 1}
	s := New(WeatherJob(syncer, []kitchen.Site{{ID: "dlp-main"}}, time.Hour))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return syncer.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerRejectsInvalidJob(t *testing.T) {
	s := New(Job{Name: "broken", Interval: 0, Run: func(context.Context) error { return nil }})
	assert.Error(t, s.Start())
}

func TestSchedulerWithoutJobs(t *testing.T) {
	s := New()
	assert.NoError(t, s.Start())
	s.Stop()
}

func TestJobRunGetsDeadline(t *testing.T) {
	var hasDeadline atomic.Bool
	job := Job{Name: "probe", Interval: time.Hour, Timeout: time.Second, Run: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hasDeadline.Store(ok)
		return errors.New("logged, not fatal")
	}}

	s := New(job)
	s.wrap(job)()
	assert.True(t, hasDeadline.Load())
}

func TestWeatherJobFailsWhenNothingSynced(t *testing.T) {
	job := WeatherJob(&countingSyncer{ok: 0}, []kitchen.Site{{ID: "dlp-main"}}, time.Hour)
	assert.Error(t, job.Run(context.Background()))
}

func TestRetentionJob(t *testing.T) {
	store := &fakePruner{}
	ledger := &fakeLedger{}

	require.NoError(t, RetentionJob(store, ledger, 0, time.Hour).Run(context.Background()))
	assert.True(t, store.before.IsZero())
	assert.Equal(t, 0, ledger.calls)

	require.NoError(t, RetentionJob(store, ledger, 24*time.Hour, time.Hour).Run(context.Background()))
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), store.before, time.Minute)
	assert.Equal(t, 1, ledger.calls)

	store.err = errors.New("db down")
	assert.Error(t, RetentionJob(store, ledger, time.Hour, time.Hour).Run(context.Background()))
}

func TestReconcileAndSweepJobs(t *testing.T) {
	reconciled := ReconcileJob(reconcilerFunc(func(ctx context.Context) (int, error) {
		return 2, nil
	}), time.Hour)
	assert.NoError(t, reconciled.Run(context.Background()))

	swept := 0
	job := SweepJob(time.Minute, sweeperFunc(func() int { swept++; return 4 }), sweeperFunc(func() int { swept++; return 0 }))
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, swept)
}
