// Package cache memoizes property fetches in front of a backend.
//
// Entries are keyed by object and range. Evaluations and getter invocations
// run user code that may mutate any object, so they are always forwarded and
// empty the cache. The node tree keeps no cache of its own, so a session
// that tears down and re-creates nodes is served from here.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/golang/groupcache/lru"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// DefaultSize is the number of fetch results kept
const DefaultSize = 4096

// Metrics receives cache lookups
type Metrics interface {
	ObserveCache(hit bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCache(bool) {}

type entryKey struct {
	id    value.ObjectID
	rng   bucket.Range
	whole bool
}

// Resolver is a caching inspector backend
type Resolver struct {
	next    inspector.Backend
	logger  *zap.Logger
	metrics Metrics

	mu     sync.Mutex
	lru    *lru.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps next with an LRU of size entries
func New(next inspector.Backend, size int) *Resolver {
	if size <= 0 {
		size = DefaultSize
	}

	return &Resolver{
		next:    next,
		logger:  zap.NewNop(),
		metrics: nopMetrics{},
		lru:     lru.New(size),
	}
}

// WithLogger sets the logger
func (r *Resolver) WithLogger(logger *zap.Logger) *Resolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithMetrics sets the metrics sink
func (r *Resolver) WithMetrics(metrics Metrics) *Resolver {
	if metrics != nil {
		r.metrics = metrics
	}
	return r
}

// Evaluate forwards to the backend and purges, whether or not the
// expression threw
func (r *Resolver) Evaluate(ctx context.Context, expression string) (value.RemoteValue, error) {
	defer r.Purge()
	return r.next.Evaluate(ctx, expression)
}

// FetchProperties serves from the cache or fills it. Failures are not
// cached.
func (r *Resolver) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	key := entryKey{id: id, whole: rng == nil}
	if rng != nil {
		key.rng = *rng
	}

	r.mu.Lock()
	cached, ok := r.lru.Get(key)
	r.mu.Unlock()

	r.metrics.ObserveCache(ok)
	if ok {
		r.hits.Add(1)
		return clone(cached.([]value.PropertyDescriptor)), nil
	}
	r.misses.Add(1)

	props, err := r.next.FetchProperties(ctx, id, rng)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.lru.Add(key, clone(props))
	r.mu.Unlock()

	return props, nil
}

// InvokeGetter is never cached and purges like Evaluate
func (r *Resolver) InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	defer r.Purge()
	return r.next.InvokeGetter(ctx, ref)
}

// Purge empties the cache
func (r *Resolver) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lru.Len() == 0 {
		return
	}
	r.lru.Clear()
	r.logger.Debug("Property cache purged")
}

// Stats returns cache statistics
func (r *Resolver) Stats() map[string]interface{} {
	r.mu.Lock()
	size := r.lru.Len()
	r.mu.Unlock()

	return map[string]interface{}{
		"entries": size,
		"hits":    r.hits.Load(),
		"misses":  r.misses.Load(),
	}
}

func clone(props []value.PropertyDescriptor) []value.PropertyDescriptor {
	return append([]value.PropertyDescriptor(nil), props...)
}
