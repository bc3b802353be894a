package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("sandbox pool is closed")
	ErrTimeout    = errors.New("sandbox acquisition timeout")
)

// Pool hands out isolated runtimes, one per inspection session
type Pool struct {
	config    Config
	logger    *zap.Logger
	sandboxes chan *Runtime
	size      int
	wait      time.Duration
	mu        sync.RWMutex
	closed    bool
}

// NewPool creates a pool of size pre-built runtimes
func NewPool(config Config, size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &Pool{
		config:    config,
		logger:    logger,
		sandboxes: make(chan *Runtime, size),
		size:      size,
		wait:      5 * time.Second,
	}

	for i := 0; i < size; i++ {
		rt, err := New(config)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.sandboxes <- rt.WithLogger(logger)
	}

	return pool, nil
}

// Acquire takes a runtime, waiting at most five seconds
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()

	select {
	case rt := <-p.sandboxes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release resets a runtime and returns it to the pool
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		p.logger.Warn("Failed to reset sandbox, replacing it", zap.Error(err))
		rt.Close()
		if fresh, err := New(p.config); err == nil {
			p.sandboxes <- fresh.WithLogger(p.logger)
		}
		return err
	}

	select {
	case p.sandboxes <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// Close closes the pool and every idle runtime
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.sandboxes)
	for rt := range p.sandboxes {
		rt.Close()
	}
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.sandboxes),
		"in_use":    p.size - len(p.sandboxes),
		"closed":    p.closed,
	}
}
