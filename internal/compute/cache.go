// Package compute memoizes remote image computations (classification,
// segmentation) by image content.
//
// Each distinct content has at most one remote call in flight; concurrent
// callers for the same content share it. Successful results never expire,
// failures are retried by the next Resolve.
package compute

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/medrec/internal/crypto/clientcrypto"
	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/metrics"
)

// DefaultCallTimeout bounds a shared remote call once no caller can cancel it.
const DefaultCallTimeout = 2 * time.Minute

// State of a cache entry.
type State int

const (
	Pending State = iota + 1
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "absent"
}

// Entry is the cached outcome for one content key.
type Entry[R any] struct {
	State  State
	Result R     // set when Ready
	Err    error // set when Failed
}

// Func performs the remote computation for content.
type Func[R any] func(ctx context.Context, content []byte) (R, error)

// Cache is a content-keyed get-or-start cache.
type Cache[R any] struct {
	name    string
	fn      Func[R]
	log     *zap.Logger
	timeout time.Duration

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]Entry[R]
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	log     *zap.Logger
	timeout time.Duration
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithCallTimeout bounds each remote call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// New creates an empty cache; name labels logs, metrics and errors.
func New[R any](name string, fn Func[R], opts ...Option) *Cache[R] {
	o := options{log: zap.NewNop(), timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[R]{
		name:    name,
		fn:      fn,
		log:     o.log.With(zap.String("cache", name)),
		timeout: o.timeout,
		entries: make(map[string]Entry[R]),
	}
}

// Resolve returns the result for content, computing it remotely at most
// once at a time. A cancelled ctx stops this caller waiting; the shared
// call keeps running for the other callers and fills the cache.
func (c *Cache[R]) Resolve(ctx context.Context, content []byte) (R, error) {
	var zero R
	key := clientcrypto.ContentKey(content)

	if e, ok := c.lookup(key); ok && e.State == Ready {
		metrics.ComputeLookupsTotal.WithLabelValues(c.name, "hit").Inc()
		return e.Result, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.lookup(key); ok && e.State == Ready {
			return e.Result, nil
		}
		c.set(key, Entry[R]{State: Pending})

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		start := time.Now()
		r, err := c.fn(cctx, content)
		if err != nil {
			metrics.ComputeFailuresTotal.WithLabelValues(c.name).Inc()
			c.log.Warn("computation failed", zap.String("key", key[:12]), zap.Duration("dur", time.Since(start)), zap.Error(err))
			c.set(key, Entry[R]{State: Failed, Err: err})
			return nil, err
		}
		c.log.Debug("computation done", zap.String("key", key[:12]), zap.Duration("dur", time.Since(start)))
		c.set(key, Entry[R]{State: Ready, Result: r})
		return r, nil
	})

	select {
	case res := <-ch:
		result := "miss"
		if res.Shared {
			result = "shared"
		}
		metrics.ComputeLookupsTotal.WithLabelValues(c.name, result).Inc()
		if res.Err != nil {
			return zero, &errs.ComputeError{Op: c.name, Key: key, Err: res.Err}
		}
		return res.Val.(R), nil
	case <-ctx.Done():
		return zero, &errs.ComputeError{Op: c.name, Key: key, Err: ctx.Err()}
	}
}

// Peek reports the entry for content without starting any work.
func (c *Cache[R]) Peek(content []byte) (Entry[R], bool) {
	return c.lookup(clientcrypto.ContentKey(content))
}

// Len returns the number of entries in any state.
func (c *Cache[R]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[R]) lookup(key string) (Entry[R], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache[R]) set(key string, e Entry[R]) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}
