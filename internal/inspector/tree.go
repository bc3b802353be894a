package inspector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/cycle"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
	"github.com/replayio/devtools-sub005/internal/shared/id"
)

// EllipsisKey is the key shown on the leaf that replaces a cyclic reference
const EllipsisKey = "…"

// Tree owns a set of lazily loaded inspector nodes backed by one resolver
type Tree struct {
	resolver ReferenceResolver
	planner  bucket.Planner
	group    singleflight.Group
	logger   *zap.Logger
	metrics  Metrics

	mu        sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// NewTree creates a tree over the given resolver
func NewTree(resolver ReferenceResolver) *Tree {
	return &Tree{
		resolver:  resolver,
		planner:   bucket.NewPlanner(bucket.DefaultSize),
		logger:    zap.NewNop(),
		metrics:   nopMetrics{},
		observers: make(map[int]Observer),
	}
}

// WithLogger sets the logger
func (t *Tree) WithLogger(logger *zap.Logger) *Tree {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithMetrics sets the metrics sink
func (t *Tree) WithMetrics(metrics Metrics) *Tree {
	if metrics != nil {
		t.metrics = metrics
	}
	return t
}

// WithPlanner overrides the bucketing policy
func (t *Tree) WithPlanner(planner bucket.Planner) *Tree {
	t.planner = planner
	return t
}

// Metrics returns the metrics sink, shared with the serializer
func (t *Tree) Metrics() Metrics {
	return t.metrics
}

// Subscribe attaches an observer and returns a function that detaches it
func (t *Tree) Subscribe(o Observer) func() {
	t.mu.Lock()
	key := t.nextObs
	t.nextObs++
	t.observers[key] = o
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.observers, key)
		t.mu.Unlock()
	}
}

// NewRoot wraps a value in a root node with an empty parent chain
func (t *Tree) NewRoot(v value.RemoteValue) *Node {
	root := &Node{
		id:    string(id.NewNodeID()),
		value: v,
	}
	t.notifyCreated(nil, []*Node{root})
	return root
}

// Expand loads and opens a node, returning its children. It is idempotent:
// an open node returns its cached children, a loading node shares the
// in-flight fetch, and a previously loaded node reopens without fetching.
func (t *Tree) Expand(ctx context.Context, n *Node) ([]*Node, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidOperation)
	}

	n.mu.Lock()
	if n.detached {
		n.mu.Unlock()
		t.metrics.ObserveExpand(OutcomeDetached)
		return nil, nil
	}
	if !n.expandableLocked() {
		kind := n.value.Kind
		ellipsis := n.ellipsis
		n.mu.Unlock()
		if ellipsis {
			return nil, fmt.Errorf("%w: ellipsis nodes cannot be expanded", ErrInvalidOperation)
		}
		return nil, fmt.Errorf("%w: cannot expand %s value", ErrInvalidOperation, kind)
	}

	switch {
	case n.state == StateOpen:
		children := n.children
		n.mu.Unlock()
		t.metrics.ObserveExpand(OutcomeCached)
		return children, nil

	case n.state == StateLoading:
		f := n.inflight
		n.wantOpen = true
		n.mu.Unlock()
		return t.await(ctx, f)

	case n.children != nil:
		children := n.children
		from := n.state
		n.state = StateOpen
		n.mu.Unlock()
		t.notifyState(n, from, StateOpen)
		t.metrics.ObserveExpand(OutcomeCached)
		return children, nil
	}

	if n.bucket == nil && cycle.IsCycle(n.value.ObjectID, n.parentChain) {
		leaf := &Node{
			id:          string(id.NewNodeID()),
			key:         value.NameKey(EllipsisKey),
			value:       n.value,
			ellipsis:    true,
			parentChain: n.parentChain,
			parent:      n,
		}
		n.children = []*Node{leaf}
		n.loadErr = nil
		from := n.state
		n.state = StateOpen
		children := n.children
		n.mu.Unlock()

		t.logger.Debug("Cycle detected",
			zap.String("node", n.id),
			zap.String("object_id", string(leaf.value.ObjectID)),
			zap.Int("depth", len(n.parentChain)),
		)
		t.notifyCreated(n, children)
		t.notifyState(n, from, StateOpen)
		t.metrics.ObserveExpand(OutcomeCycle)
		return children, nil
	}

	f := &flight{done: make(chan struct{}), gen: n.gen}
	n.inflight = f
	n.wantOpen = true
	n.loadErr = nil
	from := n.state
	n.state = StateLoading
	n.mu.Unlock()
	t.notifyState(n, from, StateLoading)

	// The fetch outlives the caller's context so that other waiters are not
	// failed by one caller giving up. Resolvers enforce their own timeouts.
	go t.load(context.WithoutCancel(ctx), n, f)

	return t.await(ctx, f)
}

func (t *Tree) await(ctx context.Context, f *flight) ([]*Node, error) {
	select {
	case <-f.done:
		return f.children, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load runs one fetch and installs its result
func (t *Tree) load(ctx context.Context, n *Node, f *flight) {
	children, outcome, err := t.fetchChildren(ctx, n)

	n.mu.Lock()
	if n.inflight == f {
		n.inflight = nil
	}
	if n.detached {
		n.mu.Unlock()
		t.logger.Debug("Discarding late result for torn-down node", zap.String("node", n.id))
		t.metrics.ObserveExpand(OutcomeDetached)
		close(f.done)
		return
	}
	if n.gen != f.gen {
		n.mu.Unlock()
		t.logger.Debug("Discarding result fetched for a replaced value", zap.String("node", n.id))
		f.err = fmt.Errorf("%w: value of node %s was replaced while loading", ErrRemoteFetchFailed, n.id)
		t.metrics.ObserveExpand(OutcomeStale)
		close(f.done)
		return
	}

	if err != nil {
		n.state = StateClosed
		n.loadErr = &LoadError{Kind: ErrorRemoteFetchFailed, Message: err.Error()}
		objectID := n.value.ObjectID
		n.mu.Unlock()

		f.err = fmt.Errorf("%w: object %s: %w", ErrRemoteFetchFailed, objectID, err)
		t.logger.Warn("Failed to load node",
			zap.String("node", n.id),
			zap.String("object_id", string(objectID)),
			zap.Error(err),
		)
		t.notifyState(n, StateLoading, StateClosed)
		t.metrics.ObserveExpand(OutcomeFailed)
		close(f.done)
		return
	}

	n.children = children
	to := StateCollapsed
	if n.wantOpen {
		to = StateOpen
	}
	n.state = to
	n.mu.Unlock()

	f.children = children
	t.notifyCreated(n, children)
	t.notifyState(n, StateLoading, to)
	t.metrics.ObserveExpand(outcome)
	close(f.done)
}

// fetchChildren plans the fetch shape for n and builds its children
func (t *Tree) fetchChildren(ctx context.Context, n *Node) ([]*Node, string, error) {
	n.mu.Lock()
	v := n.value
	n.mu.Unlock()

	childChain := n.parentChain
	if n.bucket == nil {
		childChain = cycle.Extend(n.parentChain, v.ObjectID)
	}

	var plan bucket.Plan
	if n.bucket != nil {
		plan = t.planner.PlanRange(*n.bucket)
	} else {
		plan = t.planner.PlanFetch(v)
	}

	if plan.Kind == bucket.Buckets {
		children := make([]*Node, 0, len(plan.Ranges))
		for i := range plan.Ranges {
			r := plan.Ranges[i]
			children = append(children, &Node{
				id:          string(id.NewNodeID()),
				key:         value.NameKey(r.Label()),
				value:       v,
				bucket:      &r,
				parentChain: childChain,
				parent:      n,
			})
		}
		return children, OutcomeBucketed, nil
	}

	props, err := t.fetch(ctx, v.ObjectID, n.bucket)
	if err != nil {
		return nil, OutcomeFailed, err
	}

	children := make([]*Node, 0, len(props))
	for _, p := range props {
		children = append(children, t.newChild(n, p, childChain))
	}
	return children, OutcomeFetched, nil
}

// fetch calls the resolver, collapsing identical concurrent requests made
// by different nodes for the same object and range.
func (t *Tree) fetch(ctx context.Context, objectID value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	key := string(objectID)
	if rng != nil {
		key += "#" + rng.String()
	}

	start := time.Now()
	res, err, shared := t.group.Do(key, func() (interface{}, error) {
		return t.resolver.FetchProperties(ctx, objectID, rng)
	})
	t.metrics.ObserveFetch(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	t.logger.Debug("Fetched properties",
		zap.String("object_id", string(objectID)),
		zap.Stringer("range", rangeStringer{rng}),
		zap.Bool("shared", shared),
		zap.Duration("duration", time.Since(start)),
	)
	return res.([]value.PropertyDescriptor), nil
}

func (t *Tree) newChild(parent *Node, p value.PropertyDescriptor, chain []value.ObjectID) *Node {
	child := &Node{
		id:          string(id.NewNodeID()),
		key:         p.Key,
		descriptor:  p.Kind,
		value:       p.Resolved(),
		parentChain: chain,
		parent:      parent,
	}
	if p.Kind == value.DescriptorGetter {
		child.getterRef = child.value.ObjectID
	}
	if p.EntryKey != nil {
		child.entryKey = &Node{
			id:          string(id.NewNodeID()),
			key:         p.Key,
			value:       *p.EntryKey,
			parentChain: chain,
			parent:      parent,
		}
	}
	return child
}

// Collapse closes a node without discarding its children. A collapse during
// a fetch lets the fetch install its children but leaves the node closed.
func (t *Tree) Collapse(n *Node) {
	if n == nil {
		return
	}

	n.mu.Lock()
	from := n.state
	switch n.state {
	case StateLoading:
		n.wantOpen = false
		n.mu.Unlock()
		return
	case StateOpen, StateClosed:
		n.state = StateCollapsed
		n.mu.Unlock()
		t.notifyState(n, from, StateCollapsed)
	default:
		n.mu.Unlock()
	}
}

// Teardown detaches a node and its loaded subtree. In-flight fetches for
// detached nodes complete but their results are discarded.
func (t *Tree) Teardown(n *Node) {
	if n == nil {
		return
	}

	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cur.mu.Lock()
		if cur.detached {
			cur.mu.Unlock()
			continue
		}
		cur.detached = true
		stack = append(stack, cur.children...)
		cur.mu.Unlock()

		if cur.entryKey != nil {
			stack = append(stack, cur.entryKey)
		}
		t.notifyTornDown(cur)
	}
}

func (t *Tree) snapshotObservers() []Observer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.observers) == 0 {
		return nil
	}
	out := make([]Observer, 0, len(t.observers))
	for _, o := range t.observers {
		out = append(out, o)
	}
	return out
}

func (t *Tree) notifyCreated(parent *Node, children []*Node) {
	for _, o := range t.snapshotObservers() {
		o.NodesCreated(parent, children)
	}
}

func (t *Tree) notifyState(n *Node, from, to State) {
	if from == to {
		return
	}
	for _, o := range t.snapshotObservers() {
		o.NodeStateChanged(n, from, to)
	}
}

func (t *Tree) notifyTornDown(n *Node) {
	for _, o := range t.snapshotObservers() {
		o.NodeTornDown(n)
	}
}

type rangeStringer struct{ r *bucket.Range }

func (s rangeStringer) String() string {
	if s.r == nil {
		return "all"
	}
	return s.r.String()
}
