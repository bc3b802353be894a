package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// Runtime is a goja VM acting as a remote execution context. Evaluated
// values stay inside the VM and are handed out as RemoteValues; their
// properties are described on request without running user code.
//
// goja is single-threaded, so every call takes the runtime lock.
type Runtime struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	vm      *goja.Runtime
	helpers helpers
	dom     *DOM
	table   *objectTable
	closed  bool

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

type helpers struct {
	describe   goja.Callable
	properties goja.Callable
	getter     goja.Callable
}

// New creates a runtime with fresh globals
func New(config Config) (*Runtime, error) {
	r := &Runtime{
		config: config,
		logger: zap.NewNop(),
	}
	if err := r.setup(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithLogger sets the logger used for console output and failures
func (r *Runtime) WithLogger(logger *zap.Logger) *Runtime {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *Runtime) setup() error {
	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.vm = vm
	r.table = newObjectTable()

	if err := r.setupGlobals(); err != nil {
		return err
	}
	if err := r.loadHelpers(); err != nil {
		return err
	}

	if r.config.EnableDOM {
		dom, err := ParseDOM(r.config.DOMHTML)
		if err != nil {
			return err
		}
		r.dom = dom
		if err := r.injectDOM(); err != nil {
			return fmt.Errorf("failed to inject DOM: %w", err)
		}
	}
	return nil
}

// setupGlobals removes host escape hatches and installs console and timers
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	// Timers never fire; evaluation is synchronous
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	if err := r.vm.Set("setTimeout", noop); err != nil {
		return err
	}
	return r.vm.Set("setInterval", noop)
}

func (r *Runtime) loadHelpers() error {
	v, err := r.vm.RunProgram(introspection)
	if err != nil {
		return fmt.Errorf("failed to load introspection helpers: %w", err)
	}
	factory, ok := goja.AssertFunction(v)
	if !ok {
		return errors.New("introspection helpers did not compile to a function")
	}
	res, err := factory(goja.Undefined(), r.vm.ToValue(isProxyValue), r.vm.ToValue(classOf))
	if err != nil {
		return fmt.Errorf("failed to load introspection helpers: %w", err)
	}
	obj := res.ToObject(r.vm)

	if r.helpers.describe, ok = goja.AssertFunction(obj.Get("describe")); !ok {
		return errors.New("introspection helper describe is not a function")
	}
	if r.helpers.properties, ok = goja.AssertFunction(obj.Get("properties")); !ok {
		return errors.New("introspection helper properties is not a function")
	}
	if r.helpers.getter, ok = goja.AssertFunction(obj.Get("getter")); !ok {
		return errors.New("introspection helper getter is not a function")
	}
	return nil
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		r.logger.Debug("Sandbox console", zap.String("level", level), zap.String("message", msg))
		return goja.Undefined()
	}
}

// Evaluate runs an expression in the global scope and describes its result.
// Globals declared by one evaluation are visible to the next.
func (r *Runtime) Evaluate(ctx context.Context, expression string) (value.RemoteValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return value.RemoteValue{}, ErrClosed
	}

	v, err := r.run(ctx, func() (goja.Value, error) {
		return r.vm.RunString(expression)
	})
	if err != nil {
		r.logger.Debug("Evaluation failed", zap.Error(err))
		return value.RemoteValue{}, err
	}
	return r.describe(v)
}

// FetchProperties describes the own properties of an object, the entries
// of a map or set, the indices of an array (optionally limited to rng) or
// the child nodes of an element. Accessors are reported, never read.
func (r *Runtime) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	obj, ok := r.table.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}

	if node, ok := r.table.elements[obj]; ok {
		return r.elementChildren(node), nil
	}
	if p, ok := asProxy(obj); ok {
		return r.proxyInternals(p)
	}

	desc, err := r.describe(obj)
	if err != nil {
		return nil, err
	}
	kind := kindName(desc)

	start, end := int64(-1), int64(-1)
	if rng != nil {
		start, end = int64(rng.Start), int64(rng.End)
	}

	res, err := r.run(ctx, func() (goja.Value, error) {
		return r.helpers.properties(goja.Undefined(), obj, r.vm.ToValue(kind), r.vm.ToValue(start), r.vm.ToValue(end))
	})
	if err != nil {
		return nil, err
	}
	return r.convertProperties(id, res)
}

// InvokeGetter runs the accessor recorded under ref with its owner as
// receiver. This is the only path that executes getters.
func (r *Runtime) InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return value.RemoteValue{}, ErrClosed
	}

	g, ok := r.table.getters[ref]
	if !ok {
		return value.RemoteValue{}, fmt.Errorf("%w: getter %s", ErrUnknownObject, ref)
	}
	owner := r.table.objects[g.owner]

	v, err := r.run(ctx, func() (goja.Value, error) {
		return r.helpers.getter(goja.Undefined(), owner, r.vm.ToValue(g.key))
	})
	if err != nil {
		r.logger.Debug("Getter threw", zap.String("ref", string(ref)), zap.Error(err))
		return value.RemoteValue{}, err
	}
	return r.describe(v)
}

// run executes fn with the configured timeout, interrupting the VM when
// the timeout or ctx fires
func (r *Runtime) run(ctx context.Context, fn func() (goja.Value, error)) (v goja.Value, err error) {
	var timeout <-chan time.Time
	if r.config.Timeout > 0 {
		timer := time.NewTimer(r.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-timeout:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	defer func() {
		close(done)
		<-stopped
		r.vm.ClearInterrupt()
		if p := recover(); p != nil {
			v, err = nil, fmt.Errorf("%w: panic: %v", ErrScriptFailed, p)
		}
	}()

	v, err = fn()
	if err != nil {
		return nil, scriptError(err)
	}
	return v, nil
}

func scriptError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("%w: %s", ErrScriptFailed, exc.Value().String())
	}
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return fmt.Errorf("%w: interrupted: %v", ErrScriptFailed, intr.Value())
	}
	return fmt.Errorf("%w: %w", ErrScriptFailed, err)
}

// Console returns captured console output
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry{}, r.console...)
}

// Reset discards every global, object handle and console entry
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consoleMu.Lock()
	r.console = nil
	r.consoleMu.Unlock()

	r.closed = false
	return r.setup()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.vm = nil
	r.table = nil
	r.dom = nil
	r.console = nil
	return nil
}
