package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/serialize"
	"github.com/replayio/devtools-sub005/internal/resolver/cache"
	"github.com/replayio/devtools-sub005/internal/sandbox"
)

// BackendFactory hands each new session the backend it inspects. The
// release function is called once when the session closes.
type BackendFactory interface {
	Acquire(ctx context.Context) (inspector.Backend, func(), error)
}

// FactoryFunc adapts a function to BackendFactory
type FactoryFunc func(ctx context.Context) (inspector.Backend, func(), error)

func (f FactoryFunc) Acquire(ctx context.Context) (inspector.Backend, func(), error) {
	return f(ctx)
}

// Shared gives every session the same backend
func Shared(backend inspector.Backend) BackendFactory {
	return FactoryFunc(func(context.Context) (inspector.Backend, func(), error) {
		return backend, nil, nil
	})
}

// Pooled gives every session its own sandbox runtime from pool
func Pooled(pool *sandbox.Pool, logger *zap.Logger) BackendFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return FactoryFunc(func(ctx context.Context) (inspector.Backend, func(), error) {
		rt, err := pool.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return rt, func() {
			if err := pool.Release(rt); err != nil {
				logger.Warn("Failed to release sandbox", zap.Error(err))
			}
		}, nil
	})
}

// Options configures the sessions a Manager creates
type Options struct {
	Logger       *zap.Logger
	Metrics      inspector.Metrics
	CacheMetrics cache.Metrics
	BucketSize   int
	MaxDepth     int
	CacheSize    int
	MaxSessions  int
}

// Manager owns the live inspection sessions
type Manager struct {
	factory BackendFactory
	opts    Options
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager
func NewManager(factory BackendFactory, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = serialize.DefaultMaxDepth
	}
	return &Manager{
		factory:  factory,
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session. When expression is not empty it is evaluated and
// becomes the first root.
func (m *Manager) Create(ctx context.Context, expression string) (*Session, *inspector.Node, error) {
	if m.opts.MaxSessions > 0 && m.Count() >= m.opts.MaxSessions {
		return nil, nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.opts.MaxSessions)
	}

	backend, release, err := m.factory.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire backend: %w", err)
	}
	if m.opts.CacheSize > 0 {
		backend = cache.New(backend, m.opts.CacheSize).
			WithLogger(m.logger).
			WithMetrics(m.opts.CacheMetrics)
	}

	s := newSession(uuid.NewString(), backend, release, m.opts)

	var root *inspector.Node
	if expression != "" {
		root, err = s.Evaluate(ctx, expression)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("Session created", zap.String("session", s.id))
	return s, root, nil
}

// Get returns a live session
func (m *Manager) Get(sid string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sid]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sid)
	}
	return s, nil
}

// List returns all sessions, oldest first
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete closes a session and tears down all of its nodes
func (m *Manager) Delete(sid string) error {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	delete(m.sessions, sid)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sid)
	}
	s.Close()
	m.logger.Info("Session deleted", zap.String("session", sid))
	return nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Stats returns session manager statistics
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := 0
	for _, s := range m.sessions {
		nodes += s.index.size()
	}
	return map[string]interface{}{
		"sessions":     len(m.sessions),
		"nodes":        nodes,
		"max_sessions": m.opts.MaxSessions,
	}
}
