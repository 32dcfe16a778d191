package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen rejects calls while a breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests rejects calls beyond the half-open probe budget.
	ErrTooManyRequests = errors.New("too many requests")
)

// State is a breaker's position in the trip cycle.
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

// Counts accumulates call outcomes within the current generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Settings tunes a breaker. Zero values fall back to defaults: one
// half-open probe, one-minute count window, one-minute open period,
// tripping after five consecutive failures.
type Settings struct {
	// MaxRequests caps concurrent probes while half-open
	MaxRequests uint32

	// Interval is how often closed-state counts reset
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration

	// ReadyToTrip decides, after each closed-state failure, whether to open
	ReadyToTrip func(counts Counts) bool

	// OnStateChange observes transitions
	OnStateChange func(name string, from State, to State)
}

// Breaker fails fast against an upstream that keeps erroring, then probes
// it again after a cooling-off period. Generations keep a late result from
// a previous window from corrupting the current counts.
type Breaker struct {
	name     string
	settings Settings

	mu       sync.Mutex
	state    State
	gen      uint64
	counts   Counts
	deadline time.Time
}

// New creates a breaker. The name shows up in logs and metrics only.
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout == 0 {
		settings.Timeout = time.Minute
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}

	b := &Breaker{name: name, settings: settings}
	b.roll(StateClosed, time.Now())
	return b
}

// Name returns the breaker's name
func (b *Breaker) Name() string {
	return b.name
}

// State reports the current state, advancing expired windows first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.advance(time.Now())
	return state
}

// Counts returns a snapshot of the current generation's counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs fn if the breaker admits it and records the outcome. A
// panic inside fn counts as a failure and is re-raised.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	gen, err := b.admit()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			b.settle(gen, false)
			panic(r)
		}
	}()

	result, err := fn()
	b.settle(gen, err == nil)
	return result, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, gen := b.advance(now)

	if state == StateOpen {
		return gen, ErrCircuitOpen
	}
	if state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests {
		return gen, ErrTooManyRequests
	}

	b.counts.Requests++
	return gen, nil
}

// settle records an outcome, unless the generation rolled over while the
// call was in flight (stale results are dropped).
func (b *Breaker) settle(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.advance(now)
	if current != gen {
		return
	}

	if success {
		b.counts.success()
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.shift(StateClosed, now)
		}
		return
	}

	b.counts.failure()
	switch state {
	case StateClosed:
		if b.settings.ReadyToTrip(b.counts) {
			b.shift(StateOpen, now)
		}
	case StateHalfOpen:
		b.shift(StateOpen, now)
	}
}

// advance rolls the breaker past any expired window: closed counts reset
// on the interval, open flips to half-open after the timeout. Caller holds
// the lock.
func (b *Breaker) advance(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.deadline.IsZero() && b.deadline.Before(now) {
			b.roll(StateClosed, now)
		}
	case StateOpen:
		if b.deadline.Before(now) {
			b.shift(StateHalfOpen, now)
		}
	}
	return b.state, b.gen
}

func (b *Breaker) shift(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.roll(to, now)

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

// roll starts a fresh generation for the given state.
func (b *Breaker) roll(state State, now time.Time) {
	b.gen++
	b.counts = Counts{}

	switch state {
	case StateClosed:
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.deadline = now.Add(b.settings.Timeout)
	default:
		b.deadline = time.Time{}
	}
}
