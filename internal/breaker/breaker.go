// Package breaker guards calls to flaky collaborators (the probability oracle,
// Redis) with a consecutive-failure circuit breaker.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected until the cool-down elapses
	StateHalfOpen State = 2 // one probe allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after maxFailures consecutive failures and rejects calls for
// cooldown. The first call after the cool-down is a probe: success closes the
// breaker, failure reopens it.
type Breaker struct {
	name string

	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool

	now func() time.Time

	// OnStateChange is called with the mutex held; it must not call back into
	// the breaker.
	OnStateChange func(name string, from, to State)
}

// New creates a breaker. maxFailures <= 0 disables tripping.
func New(name string, maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Name returns the breaker label used in logs and metrics.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == StateHalfOpen
	b.probing = false

	if err != nil {
		b.failures++
		if wasProbe || (b.maxFailures > 0 && b.failures >= b.maxFailures) {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
		return
	}
	b.failures = 0
	if wasProbe {
		b.transition(StateClosed)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(b.name, from, to)
	}
}
