package kitchen

import (
	"context"
	"iter"
	"time"
)

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// Appender accepts well-formed observations. Append is atomic per record.
type Appender interface {
	Append(ctx context.Context, obs Observation) error
}

// Reader serves range queries over a single stream.
//
// The returned sequence is lazy and restartable: nothing is read until it is
// ranged over, and every range starts from the beginning of the window.
// Observations are yielded in ascending timestamp order.
type Reader interface {
	Query(ctx context.Context, key StreamKey, r TimeRange) iter.Seq2[Observation, error]
}

// Store is the contract the memory store (and the Postgres store) must satisfy.
type Store interface {
	Appender
	Reader

	// Prune drops observations older than before and reports how many went away.
	Prune(ctx context.Context, before time.Time) (int, error)
}
