package store

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// sequencer runs operations one at a time in the order they were issued.
// A weight-one semaphore serves waiters strictly FIFO, and a waiter whose
// context ends leaves the queue without reordering the rest.
type sequencer struct {
	sem *semaphore.Weighted
}

func newSequencer() sequencer {
	return sequencer{sem: semaphore.NewWeighted(1)}
}

// acquire blocks until every previously issued operation has released.
func (q sequencer) acquire(ctx context.Context) (release func(), err error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { q.sem.Release(1) }, nil
}
