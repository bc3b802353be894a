package snapshot

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// Recorder passes requests through to a live backend and keeps every
// answer. Ranged fetches of the same object are merged.
type Recorder struct {
	backend inspector.Backend

	mu   sync.Mutex
	snap *Snapshot
}

// NewRecorder wraps backend
func NewRecorder(backend inspector.Backend) *Recorder {
	return &Recorder{backend: backend, snap: New()}
}

func (r *Recorder) Evaluate(ctx context.Context, expression string) (value.RemoteValue, error) {
	v, err := r.backend.Evaluate(ctx, expression)
	if err != nil {
		return v, err
	}

	r.mu.Lock()
	r.snap.Roots[expression] = v
	r.mu.Unlock()
	return v, nil
}

func (r *Recorder) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	props, err := r.backend.FetchProperties(ctx, id, rng)
	if err != nil {
		return props, err
	}

	r.mu.Lock()
	if existing, ok := r.snap.Objects[id]; ok || rng != nil {
		r.snap.Objects[id] = merge(existing, props)
	} else {
		r.snap.Objects[id] = append([]value.PropertyDescriptor{}, props...)
	}
	r.mu.Unlock()
	return props, nil
}

// InvokeGetter records thrown getters too. Cancellations are not outcomes
// of the getter and are not recorded.
func (r *Recorder) InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	v, err := r.backend.InvokeGetter(ctx, ref)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return v, err
	}

	res := GetterResult{}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Value = &v
	}

	r.mu.Lock()
	r.snap.Getters[ref] = res
	r.mu.Unlock()
	return v, err
}

// Snapshot returns a copy of everything recorded so far
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := New()
	for k, v := range r.snap.Roots {
		out.Roots[k] = v
	}
	for k, v := range r.snap.Objects {
		out.Objects[k] = append([]value.PropertyDescriptor{}, v...)
	}
	for k, v := range r.snap.Getters {
		out.Getters[k] = v
	}
	return out
}

// merge unions two descriptor lists by key. Indexed entries come first in
// index order, named properties follow in first-seen order.
func merge(a, b []value.PropertyDescriptor) []value.PropertyDescriptor {
	seen := make(map[value.Key]bool, len(a)+len(b))
	indexed := make([]value.PropertyDescriptor, 0, len(a)+len(b))
	var named []value.PropertyDescriptor

	for _, list := range [][]value.PropertyDescriptor{a, b} {
		for _, p := range list {
			if seen[p.Key] {
				continue
			}
			seen[p.Key] = true
			if p.Key.IsIndex {
				indexed = append(indexed, p)
			} else {
				named = append(named, p)
			}
		}
	}

	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].Key.Index < indexed[j].Key.Index
	})
	return append(indexed, named...)
}
