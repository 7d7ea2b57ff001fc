// Package resilience wraps calls to external dependencies with a circuit
// breaker, bounded retries, and deadline enforcement. The pipeline treats a
// dead dependency as a reason to shed work, never to stall indexing.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the protected call while the
// breaker is shedding load.
var ErrCircuitOpen = errors.New("circuit open")

type breakerState uint8

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerProbing
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerProbing:
		return "probing"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig tunes when the breaker trips and how it recovers.
// Zero values fall back to: trip after 5 straight failures, cool down for
// 30s, then admit a single probe.
type CircuitBreakerConfig struct {
	Threshold int           // consecutive failures before tripping
	Cooldown  time.Duration // how long to shed load before probing
	Probes    int           // calls admitted while probing
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return cfg
}

// CircuitBreaker sheds calls to a failing dependency. Consecutive failures
// trip it open; after the cooldown it admits a limited number of probes, and
// one probe success closes it again.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	clock  func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	inFlight int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "breaker", "name", name),
		clock:  time.Now,
	}
}

// Execute runs fn unless the breaker is shedding load, and feeds the outcome
// back into the trip state.
func (b *CircuitBreaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.observe(err)
	return err
}

// admit decides whether a call may proceed in the current state.
func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		remaining := b.cfg.Cooldown - b.clock().Sub(b.openedAt)
		if remaining > 0 {
			return fmt.Errorf("%s: %w for another %v", b.name, ErrCircuitOpen, remaining.Round(time.Millisecond))
		}
		b.state = breakerProbing
		b.inFlight = 1
		b.logger.Info("cooldown elapsed, probing dependency")
		return nil
	case breakerProbing:
		if b.inFlight >= b.cfg.Probes {
			return fmt.Errorf("%s: %w, probe in flight", b.name, ErrCircuitOpen)
		}
		b.inFlight++
		return nil
	default:
		return nil
	}
}

// observe records the call outcome and moves the trip state.
func (b *CircuitBreaker) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == breakerProbing {
			b.logger.Info("probe succeeded, closing circuit")
		}
		b.state = breakerClosed
		b.failures = 0
		b.inFlight = 0
		return
	}

	b.failures++
	switch b.state {
	case breakerProbing:
		b.trip("probe failed")
	case breakerClosed:
		if b.failures >= b.cfg.Threshold {
			b.trip("failure threshold reached")
		}
	}
}

// trip is called with the mutex held.
func (b *CircuitBreaker) trip(reason string) {
	b.state = breakerOpen
	b.openedAt = b.clock()
	b.inFlight = 0
	b.logger.Warn("circuit opened",
		"reason", reason,
		"failures", b.failures,
		"cooldown", b.cfg.Cooldown,
	)
}

// Reset closes the breaker and clears its failure count.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
	b.inFlight = 0
}
