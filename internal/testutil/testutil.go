// Package testutil provides resolvers and fixtures shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// ErrUnknownObject is returned by Graph for ids that were never defined
var ErrUnknownObject = errors.New("unknown object")

// MockResolver is a testify mock of the resolver and evaluator interfaces.
type MockResolver struct {
	mock.Mock
}

// FetchProperties mocks the FetchProperties method.
func (m *MockResolver) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	args := m.Called(ctx, id, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]value.PropertyDescriptor), args.Error(1)
}

// InvokeGetter mocks the InvokeGetter method.
func (m *MockResolver) InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(value.RemoteValue), args.Error(1)
}

// Evaluate mocks the Evaluate method.
func (m *MockResolver) Evaluate(ctx context.Context, expression string) (value.RemoteValue, error) {
	args := m.Called(ctx, expression)
	return args.Get(0).(value.RemoteValue), args.Error(1)
}

// NewMockResolver creates a mock that fails loudly on unexpected calls.
func NewMockResolver(t *testing.T) *MockResolver {
	t.Helper()
	m := new(MockResolver)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Graph is an in-memory object graph that counts resolver calls and can
// hold fetches until released.
type Graph struct {
	mu          sync.Mutex
	props       map[value.ObjectID][]value.PropertyDescriptor
	getters     map[value.ObjectID]func() (value.RemoteValue, error)
	globals     map[string]value.RemoteValue
	failures    map[value.ObjectID]error
	fetches     map[value.ObjectID]int
	getterCalls map[value.ObjectID]int
	gate        chan struct{}
	entered     chan value.ObjectID
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		props:       make(map[value.ObjectID][]value.PropertyDescriptor),
		getters:     make(map[value.ObjectID]func() (value.RemoteValue, error)),
		globals:     make(map[string]value.RemoteValue),
		failures:    make(map[value.ObjectID]error),
		fetches:     make(map[value.ObjectID]int),
		getterCalls: make(map[value.ObjectID]int),
	}
}

// Define sets the properties of an object, replacing earlier ones
func (g *Graph) Define(id value.ObjectID, props ...value.PropertyDescriptor) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.props[id] = props
	return g
}

// DefineArray defines n index properties produced by elem
func (g *Graph) DefineArray(id value.ObjectID, n int, elem func(i int) value.RemoteValue) *Graph {
	props := make([]value.PropertyDescriptor, n)
	for i := range props {
		props[i] = value.Data(value.IndexKey(i), elem(i))
	}
	return g.Define(id, props...)
}

// DefineGetter registers the function run when ref is invoked
func (g *Graph) DefineGetter(ref value.ObjectID, fn func() (value.RemoteValue, error)) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getters[ref] = fn
	return g
}

// DefineGlobal makes expression evaluate to v
func (g *Graph) DefineGlobal(expression string, v value.RemoteValue) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globals[expression] = v
	return g
}

// Fail makes every fetch of id return err until Heal is called
func (g *Graph) Fail(id value.ObjectID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[id] = err
}

// Heal clears a failure set by Fail
func (g *Graph) Heal(id value.ObjectID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, id)
}

// Block holds every subsequent fetch until the returned release function is
// called. Entered reports each held fetch as it arrives.
func (g *Graph) Block() (release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate := make(chan struct{})
	g.gate = gate
	g.entered = make(chan value.ObjectID, 64)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.gate = nil
			g.mu.Unlock()
			close(gate)
		})
	}
}

// Entered receives the ids of fetches held by Block
func (g *Graph) Entered() <-chan value.ObjectID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entered
}

// FetchCount returns how many fetches reached the graph for id
func (g *Graph) FetchCount(id value.ObjectID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches[id]
}

// TotalFetches returns the number of fetches across all objects
func (g *Graph) TotalFetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.fetches {
		total += n
	}
	return total
}

// GetterCount returns how many times ref was invoked
func (g *Graph) GetterCount(ref value.ObjectID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getterCalls[ref]
}

// FetchProperties implements the resolver interface
func (g *Graph) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	g.mu.Lock()
	g.fetches[id]++
	gate, entered := g.gate, g.entered
	g.mu.Unlock()

	if gate != nil {
		entered <- id
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[id]; err != nil {
		return nil, err
	}
	props, ok := g.props[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	if rng == nil {
		return props, nil
	}

	out := make([]value.PropertyDescriptor, 0, rng.Len())
	for _, p := range props {
		if p.Key.IsIndex && p.Key.Index >= rng.Start && p.Key.Index <= rng.End {
			out = append(out, p)
		}
	}
	return out, nil
}

// InvokeGetter implements the resolver interface
func (g *Graph) InvokeGetter(_ context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	g.mu.Lock()
	g.getterCalls[ref]++
	fn, ok := g.getters[ref]
	g.mu.Unlock()

	if !ok {
		return value.RemoteValue{}, fmt.Errorf("%w: getter %s", ErrUnknownObject, ref)
	}
	return fn()
}

// Evaluate implements the evaluator interface
func (g *Graph) Evaluate(_ context.Context, expression string) (value.RemoteValue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.globals[expression]
	if !ok {
		return value.RemoteValue{}, fmt.Errorf("ReferenceError: %s is not defined", expression)
	}
	return v, nil
}
