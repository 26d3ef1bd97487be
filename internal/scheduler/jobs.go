package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

type WeatherSyncer interface {
	SyncAll(ctx context.Context, sites []kitchen.Site) int
}

type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

type LedgerPruner interface {
	Prune(before time.Time) int
}

type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

type Sweeper interface {
	Sweep() int
}

// WeatherJob pulls current weather for every site.
func WeatherJob(syncer WeatherSyncer, sites []kitchen.Site, interval time.Duration) Job {
	return Job{
		Name:     "weather-sync",
		Interval: interval,
		Run: func(ctx context.Context) error {
			ok := syncer.SyncAll(ctx, sites)
			log.ForContext(ctx).WithFields(log.Fields{
				"synced": ok,
				"sites":  len(sites),
			}).Info("scheduler: weather sync finished")
			if ok == 0 && len(sites) > 0 {
				return errors.New("no site could be synced")
			}
			return nil
		},
	}
}

// RetentionJob drops observations and settled forecasts older than maxAge.
// It is a no-op when maxAge is zero.
func RetentionJob(store Pruner, ledger LedgerPruner, maxAge, interval time.Duration) Job {
	return Job{
		Name:     "retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if maxAge <= 0 {
				return nil
			}
			cutoff := time.Now().UTC().Add(-maxAge)

			removed, err := store.Prune(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("prune observations: %w", err)
			}
			forecasts := 0
			if ledger != nil {
				forecasts = ledger.Prune(cutoff)
			}
			log.ForContext(ctx).WithFields(log.Fields{
				"observations": removed,
				"forecasts":    forecasts,
			}).Info("scheduler: retention applied")
			return nil
		},
	}
}

// ReconcileJob settles due forecasts against observed demand.
func ReconcileJob(r Reconciler, interval time.Duration) Job {
	return Job{
		Name:     "forecast-reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := r.Reconcile(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				log.ForContext(ctx).WithField("reconciled", n).Info("scheduler: forecasts reconciled")
			}
			return nil
		},
	}
}

// SweepJob evicts expired entries from in-process caches and limiters.
func SweepJob(interval time.Duration, sweepers ...Sweeper) Job {
	return Job{
		Name:     "sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n := 0
			for _, s := range sweepers {
				n += s.Sweep()
			}
			log.ForContext(ctx).WithField("evicted", n).Debug("scheduler: sweep finished")
			return nil
		},
	}
}
