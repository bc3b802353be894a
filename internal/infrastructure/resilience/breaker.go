package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State is where the breaker stands towards the remote side
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings tunes a Breaker. Zero fields take the defaults applied by New.
type Settings struct {
	// Trials is how many requests a half-open breaker lets through, and how
	// many of them must succeed before it closes again
	Trials uint32
	// Window is how long a closed breaker accumulates counts before
	// starting over
	Window time.Duration
	// Cooldown is how long an open breaker turns requests away
	Cooldown time.Duration
	// Trip decides, after a failure, whether a closed breaker opens
	Trip func(counts Counts) bool
	// OnStateChange observes transitions
	OnStateChange func(name string, from State, to State)
	// Healthy classifies a request error. The default treats nil and a
	// cancelled caller as healthy: a caller giving up says nothing about
	// the remote side.
	Healthy func(err error) bool
}

// Counts covers the current window, or the current half-open trial
type Counts struct {
	Requests             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker fails remote calls fast once the remote side keeps failing
type Breaker struct {
	name     string
	settings Settings

	mu       sync.Mutex
	state    State
	counts   Counts
	deadline time.Time
	// epoch changes with every transition and window; outcomes of requests
	// admitted under an older epoch are dropped
	epoch uint64
}

func New(name string, settings Settings) *Breaker {
	if settings.Trials == 0 {
		settings.Trials = 1
	}
	if settings.Window == 0 {
		settings.Window = time.Minute
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = time.Minute
	}
	if settings.Trip == nil {
		settings.Trip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if settings.Healthy == nil {
		settings.Healthy = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
	}

	return &Breaker{
		name:     name,
		settings: settings,
		deadline: time.Now().Add(settings.Window),
	}
}

func (b *Breaker) Name() string {
	return b.name
}

// State reports the state as of now, applying any due transition
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(time.Now())
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Stats reports the breaker for health endpoints
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(time.Now())
	return map[string]interface{}{
		"name":                 b.name,
		"state":                b.state.String(),
		"requests":             b.counts.Requests,
		"consecutive_failures": b.counts.ConsecutiveFailures,
	}
}

// Run sends req through b. A caller whose context is already done is turned
// away without counting against the breaker; a panicking request counts as
// a failure and the panic propagates.
func Run[T any](ctx context.Context, b *Breaker, req func(ctx context.Context) (T, error)) (res T, err error) {
	if err := ctx.Err(); err != nil {
		return res, err
	}
	epoch, err := b.admit()
	if err != nil {
		return res, err
	}

	healthy := false
	defer func() {
		if p := recover(); p != nil {
			b.record(epoch, false)
			panic(p)
		}
		b.record(epoch, healthy)
	}()

	res, err = req(ctx)
	healthy = b.settings.Healthy(err)
	return res, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(time.Now())
	switch {
	case b.state == StateOpen:
		return b.epoch, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.Trials:
		return b.epoch, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.advance(now)
	if epoch != b.epoch {
		return
	}

	if healthy {
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.Trials {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	if b.state == StateHalfOpen || b.settings.Trip(b.counts) {
		b.transition(StateOpen, now)
	}
}

// advance applies the transitions that time alone causes
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.deadline) {
			b.counts = Counts{}
			b.deadline = now.Add(b.settings.Window)
			b.epoch++
		}
	case StateOpen:
		if now.After(b.deadline) {
			b.transition(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.counts = Counts{}
	b.epoch++

	switch to {
	case StateClosed:
		b.deadline = now.Add(b.settings.Window)
	case StateOpen:
		b.deadline = now.Add(b.settings.Cooldown)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
