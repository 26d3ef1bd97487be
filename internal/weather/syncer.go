package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/priyankabp/stock-smart-kitchen/internal/ingest"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

var ErrNoReadings = errors.New("no provider returned a reading")

// Syncer pulls current conditions for each site and feeds them through
// the ingest adapter as weather observations.
type Syncer struct {
	providers []Provider
	submitter Submitter
	now       func() time.Time
}

func NewSyncer(providers []Provider, submitter Submitter) *Syncer {
	return &Syncer{
		providers: providers,
		submitter: submitter,
		now:       time.Now,
	}
}

// Sync fetches from every provider concurrently, averages the successful
// readings and submits one weather record for site. Individual provider
// failures are logged and tolerated.
func (s *Syncer) Sync(ctx context.Context, site kitchen.Site) (Snapshot, error) {
	if len(s.providers) == 0 {
		return Snapshot{}, fmt.Errorf("no weather providers configured")
	}

	var (
		mu       sync.Mutex
		readings []ProviderReading
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.providers {
		g.Go(func() error {
			r, err := p.Fetch(gctx, site)
			if err != nil {
				log.ForContext(ctx).WithError(err).WithFields(log.Fields{
					"provider": p.Name(),
					"site":     site.ID,
				}).Warn("weather provider fetch failed")
				return nil
			}
			mu.Lock()
			readings = append(readings, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(readings) == 0 {
		return Snapshot{}, fmt.Errorf("%w for %s", ErrNoReadings, site.ID)
	}

	snap := AggregateReadings(site.ID, readings, s.now())
	results := s.submitter.Ingest(ctx, []ingest.RawRecord{toRecord(snap)})
	if len(results) != 1 || !results[0].Accepted {
		return snap, fmt.Errorf("weather record for %s rejected: %s", site.ID, describe(results))
	}
	return snap, nil
}

// SyncAll syncs every site in parallel and returns how many succeeded.
func (s *Syncer) SyncAll(ctx context.Context, sites []kitchen.Site) int {
	var (
		g  errgroup.Group
		mu sync.Mutex
		ok int
	)
	for _, site := range sites {
		g.Go(func() error {
			if _, err := s.Sync(ctx, site); err != nil {
				log.ForContext(ctx).WithError(err).WithField("site", site.ID).Warn("weather sync failed")
				return nil
			}
			mu.Lock()
			ok++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ok
}

func toRecord(snap Snapshot) ingest.RawRecord {
	temp := snap.Temperature
	wind := snap.WindSpeed
	precip := snap.PrecipMM
	rec := ingest.RawRecord{
		Location:    snap.SiteID,
		Kind:        ingest.KindWeather,
		Timestamp:   snap.Timestamp.Format(time.RFC3339Nano),
		Quantity:    &precip,
		Temperature: &temp,
		WindSpeed:   &wind,
		Condition:   string(snap.Condition),
	}
	if snap.Humidity > 0 {
		h := snap.Humidity
		rec.Humidity = &h
	}
	return rec
}

func describe(results []ingest.Result) string {
	var parts []string
	for _, r := range results {
		if r.Error != "" {
			parts = append(parts, r.Error)
		}
		for _, e := range r.Errors {
			parts = append(parts, e.Error())
		}
	}
	if len(parts) == 0 {
		return "unknown reason"
	}
	return strings.Join(parts, "; ")
}
