// Package store keeps in-memory mirrors of remote collections (patients,
// diagnoses of the selected patient) synchronized with the records API.
//
// Every remote operation of a store runs through a FIFO sequencer: an
// operation starts only after all operations issued before it on the same
// store have settled. A fetch therefore never overwrites an entity created
// by an operation issued earlier, and a fetch issued later observes it.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/metrics"
	"github.com/and161185/medrec/internal/notify"
)

// Entity is a server-identified record held by a Store.
type Entity interface {
	EntityID() int64
}

// Remote is the server side of a collection. scope is the owning entity id
// for nested collections and zero for top-level ones.
type Remote[T Entity, D any] interface {
	List(ctx context.Context, scope int64) ([]T, error)
	Create(ctx context.Context, scope int64, draft D) (T, error)
	Update(ctx context.Context, entity T) error
	Delete(ctx context.Context, id int64) error
}

// EventKind tells subscribers what changed.
type EventKind int

const (
	Fetched EventKind = iota + 1
	Created
	Updated
	Deleted
	Cleared
)

func (k EventKind) String() string {
	switch k {
	case Fetched:
		return "fetched"
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Cleared:
		return "cleared"
	}
	return "unknown"
}

// Event is published after every change of a store's collection.
type Event struct {
	Store string
	Kind  EventKind
	ID    int64 // entity id for Created, Updated and Deleted
	Len   int   // collection size after the change
}

// Store is the generic entity store shared by the patient and diagnosis stores.
type Store[T Entity, D any] struct {
	name   string // metrics label and error entity name
	remote Remote[T, D]
	log    *zap.Logger
	seq    sequencer

	mu      sync.RWMutex
	items   []T
	lastErr error

	hub notify.Hub[Event]
}

func newStore[T Entity, D any](name string, remote Remote[T, D], log *zap.Logger) *Store[T, D] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store[T, D]{name: name, remote: remote, log: log.With(zap.String("store", name)), seq: newSequencer()}
}

// Items returns a copy of the collection in its current order.
func (s *Store[T, D]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Len returns the collection size.
func (s *Store[T, D]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the entity with id, if held.
func (s *Store[T, D]) Get(id int64) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// LastError returns the last recorded failure, for display.
func (s *Store[T, D]) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError drops the recorded failure.
func (s *Store[T, D]) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// Subscribe delivers an Event after every change. Call Close on the subscription when done.
func (s *Store[T, D]) Subscribe() *notify.Subscription[Event] { return s.hub.Subscribe() }

// Close ends all subscriptions.
func (s *Store[T, D]) Close() { s.hub.Close() }

// Update submits the full entity and, on success, replaces the local entry with the same id.
// On failure the local entry keeps its last known value.
func (s *Store[T, D]) Update(ctx context.Context, entity T) error {
	id := entity.EntityID()
	return s.sequenced(ctx, "update", id, func(ctx context.Context) error {
		if err := s.remote.Update(ctx, entity); err != nil {
			return err
		}
		s.mu.Lock()
		if i := s.indexLocked(id); i >= 0 {
			s.items[i] = entity
		}
		s.mu.Unlock()
		s.changed(Updated, id)
		return nil
	})
}

// Delete removes the entity on the server and, on success, locally.
// On failure the entry stays in place.
func (s *Store[T, D]) Delete(ctx context.Context, id int64) error {
	return s.sequenced(ctx, "delete", id, func(ctx context.Context) error {
		if err := s.remote.Delete(ctx, id); err != nil {
			return err
		}
		s.mu.Lock()
		s.items = slices.DeleteFunc(s.items, func(e T) bool { return e.EntityID() == id })
		s.mu.Unlock()
		s.changed(Deleted, id)
		return nil
	})
}

// fetch replaces the whole collection with the server's for scope.
// accept is consulted under the store lock right before the replacement;
// returning false discards the result as superseded.
func (s *Store[T, D]) fetch(ctx context.Context, scope int64, accept func() bool) error {
	return s.sequenced(ctx, "fetch", 0, func(ctx context.Context) error {
		items, err := s.remote.List(ctx, scope)
		if err != nil {
			if accept != nil && !accept() {
				return errs.ErrSuperseded
			}
			return err
		}
		if items == nil {
			items = []T{}
		}
		s.mu.Lock()
		if accept != nil && !accept() {
			s.mu.Unlock()
			metrics.StoreDiscardedFetchesTotal.WithLabelValues(s.name).Inc()
			s.log.Debug("fetch result discarded", zap.Int64("scope", scope))
			return errs.ErrSuperseded
		}
		s.items = items
		s.mu.Unlock()
		s.changed(Fetched, 0)
		return nil
	})
}

// create submits draft and appends the server's entity. An entity already
// present with the same id is replaced instead, so it is never held twice.
// accept may reject the result (it is still created on the server).
func (s *Store[T, D]) create(ctx context.Context, scope int64, draft D, accept func(T) bool) (T, error) {
	var created T
	err := s.sequenced(ctx, "create", 0, func(ctx context.Context) error {
		e, err := s.remote.Create(ctx, scope, draft)
		if err != nil {
			return err
		}
		created = e
		s.mu.Lock()
		if accept != nil && !accept(e) {
			s.mu.Unlock()
			return nil
		}
		if i := s.indexLocked(e.EntityID()); i >= 0 {
			s.items[i] = e
		} else {
			s.items = append(s.items, e)
		}
		s.mu.Unlock()
		s.changed(Created, e.EntityID())
		return nil
	})
	return created, err
}

// upsert fetches a single entity and inserts or replaces it.
func (s *Store[T, D]) upsert(ctx context.Context, id int64, get func(ctx context.Context) (T, error)) (T, error) {
	var got T
	err := s.sequenced(ctx, "get", id, func(ctx context.Context) error {
		e, err := get(ctx)
		if err != nil {
			return err
		}
		got = e
		s.mu.Lock()
		if i := s.indexLocked(id); i >= 0 {
			s.items[i] = e
		} else {
			s.items = append(s.items, e)
		}
		s.mu.Unlock()
		s.changed(Updated, id)
		return nil
	})
	return got, err
}

// reset empties the collection outside of the sequencer.
func (s *Store[T, D]) reset() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	s.changed(Cleared, 0)
}

// sequenced runs op after every previously issued operation and wraps its error.
func (s *Store[T, D]) sequenced(ctx context.Context, op string, id int64, fn func(ctx context.Context) error) error {
	release, err := s.seq.acquire(ctx)
	if err == nil {
		defer release()
		err = fn(ctx)
	}
	if err == nil {
		return nil
	}
	se := &errs.StoreError{Op: op, Entity: s.name, ID: id, Err: err}
	if errors.Is(err, errs.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return se
	}
	s.mu.Lock()
	s.lastErr = se
	s.mu.Unlock()
	s.log.Warn("store operation failed", zap.String("op", op), zap.Int64("id", id), zap.Error(err))
	return se
}

func (s *Store[T, D]) changed(kind EventKind, id int64) {
	n := s.Len()
	metrics.StoreItems.WithLabelValues(s.name).Set(float64(n))
	s.hub.Publish(Event{Store: s.name, Kind: kind, ID: id, Len: n})
}

func (s *Store[T, D]) indexLocked(id int64) int {
	return slices.IndexFunc(s.items, func(e T) bool { return e.EntityID() == id })
}
