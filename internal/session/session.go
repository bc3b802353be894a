package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/serialize"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNodeNotFound    = errors.New("node not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrTooManySessions = errors.New("too many sessions")
	ErrEvaluation      = errors.New("evaluation failed")
)

// Info summarizes a session for listings
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Roots     []string  `json:"roots"`
	Nodes     int       `json:"nodes"`
	Observers int       `json:"observers"`
}

// Session is one inspection: a tree over a dedicated backend, the roots
// created in it, and the index that lets the API address its nodes
type Session struct {
	id        string
	createdAt time.Time
	backend   inspector.Backend
	release   func()
	tree      *inspector.Tree
	index     *index
	hub       *Hub
	detach    func()
	maxDepth  int
	logger    *zap.Logger

	mu     sync.RWMutex
	roots  []*inspector.Node
	closed bool
}

func newSession(sid string, backend inspector.Backend, release func(), opts Options) *Session {
	logger := opts.Logger.With(zap.String("session", sid))
	tree := inspector.NewTree(backend).WithLogger(logger).WithMetrics(opts.Metrics)
	if opts.BucketSize > 0 {
		tree = tree.WithPlanner(bucket.NewPlanner(opts.BucketSize))
	}

	hub := NewHub(logger)
	idx := newIndex(sid, hub)

	return &Session{
		id:        sid,
		createdAt: time.Now(),
		backend:   backend,
		release:   release,
		tree:      tree,
		index:     idx,
		hub:       hub,
		detach:    tree.Subscribe(idx),
		maxDepth:  opts.MaxDepth,
		logger:    logger,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Tree() *inspector.Tree { return s.tree }

// Events subscribes to the session's node events
func (s *Session) Events(buffer int) (<-chan Event, func()) {
	return s.hub.Subscribe(buffer)
}

// Evaluate runs an expression in the session's context and adds the result
// as a new root
func (s *Session) Evaluate(ctx context.Context, expression string) (*inspector.Node, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrSessionClosed
	}

	v, err := s.backend.Evaluate(ctx, expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	return s.AddRoot(v)
}

// AddRoot wraps an already known value in a new root node
func (s *Session) AddRoot(v value.RemoteValue) (*inspector.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	root := s.tree.NewRoot(v)
	s.roots = append(s.roots, root)
	s.logger.Debug("Root created",
		zap.String("node", root.ID()),
		zap.String("kind", v.Kind.String()),
	)
	return root, nil
}

// Roots returns the live root nodes in creation order
func (s *Session) Roots() []*inspector.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*inspector.Node, 0, len(s.roots))
	for _, r := range s.roots {
		if !r.Detached() {
			out = append(out, r)
		}
	}
	return out
}

// Node looks up a live node
func (s *Session) Node(nid string) (*inspector.Node, error) {
	n, ok := s.index.get(nid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nid)
	}
	return n, nil
}

// Expand opens a node and returns its children
func (s *Session) Expand(ctx context.Context, nid string) ([]*inspector.Node, error) {
	n, err := s.Node(nid)
	if err != nil {
		return nil, err
	}
	return s.tree.Expand(ctx, n)
}

// Collapse closes a node, keeping its children
func (s *Session) Collapse(nid string) (*inspector.Node, error) {
	n, err := s.Node(nid)
	if err != nil {
		return nil, err
	}
	s.tree.Collapse(n)
	return n, nil
}

// InvokeGetter evaluates the getter behind a node
func (s *Session) InvokeGetter(ctx context.Context, nid string) (*inspector.Node, error) {
	n, err := s.Node(nid)
	if err != nil {
		return nil, err
	}
	if _, err := s.tree.InvokeGetter(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Teardown detaches a node and its subtree
func (s *Session) Teardown(nid string) error {
	n, err := s.Node(nid)
	if err != nil {
		return err
	}
	s.tree.Teardown(n)
	return nil
}

// Copy serializes a node down to depth levels, or the session default when
// depth is not positive
func (s *Session) Copy(ctx context.Context, nid string, depth int) (string, error) {
	n, err := s.Node(nid)
	if err != nil {
		return "", err
	}
	if depth <= 0 {
		depth = s.maxDepth
	}
	return serialize.New(s.tree).WithMaxDepth(depth).Serialize(ctx, n)
}

// Info summarizes the session
func (s *Session) Info() Info {
	roots := s.Roots()
	ids := make([]string, len(roots))
	for i, r := range roots {
		ids[i] = r.ID()
	}
	return Info{
		ID:        s.id,
		CreatedAt: s.createdAt,
		Roots:     ids,
		Nodes:     s.index.size(),
		Observers: s.hub.Subscribers(),
	}
}

// Close tears down every root, ends event streams and hands the backend
// back. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	roots := s.roots
	s.roots = nil
	s.mu.Unlock()

	for _, r := range roots {
		s.tree.Teardown(r)
	}
	s.detach()
	s.hub.Close()
	if s.release != nil {
		s.release()
	}
	s.logger.Debug("Session closed", zap.Int("roots", len(roots)))
}
