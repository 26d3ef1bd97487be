package store

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

// segment is the append-only, timestamp-ordered log of one stream.
//
// Readers copy the slice header under the read lock and iterate without it.
// Writers only ever append past the end of a header a reader may hold, or
// replace the whole slice (out-of-order insert), so a reader never observes
// a partially written record.
type segment struct {
	obs []kitchen.Observation
}

// MemoryStore is a concurrency-safe in-memory time-series store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: stream key, value: segment
	data map[string]*segment

	// max observations per stream (0 = unlimited)
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore. If maxHistory is <= 0 streams
// grow without bound. Age-based retention is left to Prune.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*segment),
		maxHistory: maxHistory,
	}
}

// Append adds obs to its stream and enforces the per-stream count limit.
// Old records are kept whatever their age, so an accepted record is always
// visible to Query until the next Prune. In-order appends are O(1) amortized.
func (s *MemoryStore) Append(ctx context.Context, obs kitchen.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := obs.Stream().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.data[key]
	if !ok {
		seg = &segment{}
		s.data[key] = seg
	}

	n := len(seg.obs)
	if n == 0 || !obs.Timestamp.Before(seg.obs[n-1].Timestamp) {
		seg.obs = append(seg.obs, obs)
	} else {
		// Late record: insert after any equal timestamps into a fresh array.
		i := sort.Search(n, func(i int) bool {
			return seg.obs[i].Timestamp.After(obs.Timestamp)
		})
		next := make([]kitchen.Observation, 0, n+1+n/4)
		next = append(next, seg.obs[:i]...)
		next = append(next, obs)
		next = append(next, seg.obs[i:]...)
		seg.obs = next
	}

	s.enforceRetention(seg)
	return nil
}

func (s *MemoryStore) enforceRetention(seg *segment) {
	if s.maxHistory > 0 && len(seg.obs) > s.maxHistory {
		over := len(seg.obs) - s.maxHistory
		seg.obs = seg.obs[over:]
	}
}

// Query returns the observations of key inside r, oldest first.
func (s *MemoryStore) Query(ctx context.Context, key kitchen.StreamKey, r kitchen.TimeRange) iter.Seq2[kitchen.Observation, error] {
	return func(yield func(kitchen.Observation, error) bool) {
		if r.Empty() {
			return
		}

		s.mu.RLock()
		var snapshot []kitchen.Observation
		if seg, ok := s.data[key.String()]; ok {
			snapshot = seg.obs
		}
		s.mu.RUnlock()

		for i := firstAtOrAfter(snapshot, r.Start); i < len(snapshot); i++ {
			o := snapshot[i]
			if !o.Timestamp.Before(r.End) {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(kitchen.Observation{}, err)
				return
			}
			if !yield(o, nil) {
				return
			}
		}
	}
}

// Prune drops every observation older than before across all streams.
func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, seg := range s.data {
		i := firstAtOrAfter(seg.obs, before)
		removed += i
		seg.obs = seg.obs[i:]
		if len(seg.obs) == 0 {
			delete(s.data, key)
		}
	}
	return removed, nil
}

// Len returns the number of observations held for key.
func (s *MemoryStore) Len(key kitchen.StreamKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if seg, ok := s.data[key.String()]; ok {
		return len(seg.obs)
	}
	return 0
}

// firstAtOrAfter returns the index of the first observation with Timestamp >= t.
func firstAtOrAfter(obs []kitchen.Observation, t time.Time) int {
	return sort.Search(len(obs), func(i int) bool {
		return !obs[i].Timestamp.Before(t)
	})
}
