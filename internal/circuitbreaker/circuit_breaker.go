package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker's admission mode.
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
	}
	return "unknown"
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests in half-open state")
)

// Config tunes one breaker instance.
type Config struct {
	// MaxRequests caps concurrent probes while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counters; zero disables the reset.
	Interval time.Duration
	// Timeout is how long an open breaker rejects before probing again.
	Timeout time.Duration
	// FailureThreshold is the consecutive-failure count that trips the breaker.
	FailureThreshold uint32
	// SuccessThreshold is the consecutive-success count that closes it again.
	SuccessThreshold uint32
	// OnStateChange, when set, observes every transition.
	OnStateChange func(name string, from State, to State)
}

// DefaultConfig returns the baseline tuning shared by all collaborator
// breakers before env overrides.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// Counts is a snapshot of the current generation's request statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker guards one downstream collaborator. Counters belong to a
// numbered generation; every transition (and every closed-state interval
// reset) starts a new generation so a result from before the transition
// cannot influence the state after it.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger

	mutex      sync.RWMutex
	state      State
	generation uint64
	counts     Counts
	deadline   time.Time
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(name string, config Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{name: name, config: config, logger: logger}
	if config.Interval > 0 {
		cb.deadline = time.Now().Add(config.Interval)
	}
	return cb
}

// Execute runs fn if the breaker admits the request. A panic in fn is counted
// as a failure before being re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.settle(gen, false)
			panic(r)
		}
	}()

	err = fn()
	cb.settle(gen, err == nil)
	return err
}

// State returns the current admission mode.
func (cb *CircuitBreaker) State() State {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Counts returns a snapshot of the current generation's statistics.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.counts
}

// admit decides whether one more request may pass and returns the generation
// it was admitted under.
func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	cb.advance(now)

	switch {
	case cb.state == StateOpen:
		return cb.generation, ErrCircuitBreakerOpen
	case cb.state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests:
		return cb.generation, ErrTooManyRequests
	}

	cb.counts.Requests++
	return cb.generation, nil
}

// settle records the outcome of a request admitted under gen. Results from a
// superseded generation are discarded.
func (cb *CircuitBreaker) settle(gen uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	cb.advance(now)
	if cb.generation != gen {
		return
	}

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen {
			cb.counts.ConsecutiveSuccesses++
			if cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
				cb.transition(StateClosed, now)
			}
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.counts.TotalFailures++
		cb.counts.ConsecutiveFailures++
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		cb.transition(StateOpen, now)
	}
}

// advance applies time-driven movement: closed counters expire on the
// interval, open flips to half-open after the timeout. Caller holds the lock.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.deadline.IsZero() || now.Before(cb.deadline) {
		return
	}
	switch cb.state {
	case StateClosed:
		cb.newGeneration(now)
	case StateOpen:
		cb.transition(StateHalfOpen, now)
	}
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.newGeneration(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (cb *CircuitBreaker) newGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		if cb.config.Interval > 0 {
			cb.deadline = now.Add(cb.config.Interval)
		} else {
			cb.deadline = time.Time{}
		}
	case StateOpen:
		cb.deadline = now.Add(cb.config.Timeout)
	default:
		cb.deadline = time.Time{}
	}
}
