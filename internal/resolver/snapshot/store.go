package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// Store serves a snapshot as an inspector backend. The snapshot can be
// swapped while requests are running; each request sees one version.
type Store struct {
	mu     sync.RWMutex
	snap   *Snapshot
	logger *zap.Logger
}

// NewStore serves snap, or an empty snapshot when snap is nil
func NewStore(snap *Snapshot) *Store {
	if snap == nil {
		snap = New()
	}
	_ = snap.normalize()
	return &Store{snap: snap, logger: zap.NewNop()}
}

// WithLogger sets the logger
func (s *Store) WithLogger(logger *zap.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Replace swaps in a new snapshot
func (s *Store) Replace(snap *Snapshot) error {
	if err := snap.normalize(); err != nil {
		return err
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info("Snapshot replaced", zap.Any("stats", snap.Stats()))
	return nil
}

// Snapshot returns the snapshot currently served
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Expressions lists the recorded root expressions in sorted order
func (s *Store) Expressions() []string {
	snap := s.Snapshot()
	out := make([]string, 0, len(snap.Roots))
	for expr := range snap.Roots {
		out = append(out, expr)
	}
	sort.Strings(out)
	return out
}

// Evaluate returns the root recorded for the exact expression text
func (s *Store) Evaluate(ctx context.Context, expression string) (value.RemoteValue, error) {
	if err := ctx.Err(); err != nil {
		return value.RemoteValue{}, err
	}

	v, ok := s.Snapshot().Roots[expression]
	if !ok {
		return value.RemoteValue{}, fmt.Errorf("%w: %q", ErrUnknownExpression, expression)
	}
	return v, nil
}

// FetchProperties returns the recorded properties of id. A range keeps the
// indexed entries it covers.
func (s *Store) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	props, ok := s.Snapshot().Objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	return filterRange(props, rng), nil
}

// InvokeGetter replays a recorded getter outcome
func (s *Store) InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	if err := ctx.Err(); err != nil {
		return value.RemoteValue{}, err
	}

	res, ok := s.Snapshot().Getters[ref]
	if !ok {
		return value.RemoteValue{}, fmt.Errorf("%w: %s", ErrUnknownGetter, ref)
	}
	if res.Error != "" {
		return value.RemoteValue{}, fmt.Errorf("%w: %s", ErrGetterThrew, res.Error)
	}
	if res.Value == nil {
		return value.Undefined(), nil
	}
	return *res.Value, nil
}

// filterRange returns a fresh slice so callers never alias stored data
func filterRange(props []value.PropertyDescriptor, rng *bucket.Range) []value.PropertyDescriptor {
	if rng == nil {
		return append([]value.PropertyDescriptor(nil), props...)
	}

	out := make([]value.PropertyDescriptor, 0, rng.Len())
	for _, p := range props {
		if p.Key.IsIndex && p.Key.Index >= rng.Start && p.Key.Index <= rng.End {
			out = append(out, p)
		}
	}
	return out
}
