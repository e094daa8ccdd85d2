// Package resilience provides circuit breaking, rate limiting, and retry
// logic for external dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed means requests flow normally.
	StateClosed State = iota

	// StateOpen means requests are rejected until the cooldown elapses.
	StateOpen

	// StateHalfOpen means a single probe request is testing recovery.
	StateHalfOpen
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

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. A single success resets the count.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before allowing one
	// probe request.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns sensible defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a consecutive-failure circuit breaker. After FailureThreshold
// failures in a row the circuit opens; once Cooldown elapses, exactly one
// probe is allowed through. A successful probe closes the circuit, a failed
// probe re-opens it with a fresh cooldown.
//
// Allow never blocks and performs no I/O, so a rejected caller learns the
// state in well under a millisecond.
type Breaker struct {
	name     string
	config   BreakerConfig
	logger   observability.Logger
	onChange func(name string, from, to State)

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a circuit breaker. onChange may be nil; when set it is
// invoked outside the hot path lock on every state transition.
func NewBreaker(name string, config BreakerConfig, logger observability.Logger, onChange func(name string, from, to State)) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}

	return &Breaker{
		name:     name,
		config:   config,
		logger:   logger.WithPrefix("circuit-breaker"),
		onChange: onChange,
		state:    StateClosed,
	}
}

// Allow reports whether a call may proceed. Callers that receive true must
// report the outcome with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true

	case StateOpen:
		if time.Since(b.openedAt) >= b.config.Cooldown {
			b.setState(StateHalfOpen)
			b.probing = true
			b.mu.Unlock()
			return true
		}
		b.counts.RecordRejected()
		b.mu.Unlock()
		return false

	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			b.mu.Unlock()
			return true
		}
		b.counts.RecordRejected()
		b.mu.Unlock()
		return false

	default:
		b.mu.Unlock()
		return false
	}
}

// RecordSuccess reports a successful call and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.counts.RecordSuccess()
	b.probing = false
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
	b.mu.Unlock()
}

// RecordFailure reports a failed call. In the closed state it opens the
// circuit once the consecutive failure threshold is reached; a failed probe
// re-opens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.counts.RecordFailure()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.openedAt = time.Now()
		b.setState(StateOpen)

	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.FailureThreshold {
			b.openedAt = time.Now()
			b.setState(StateOpen)
		}
	}
	b.mu.Unlock()
}

// setState transitions the breaker, logging and notifying. Caller holds mu.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	fields := map[string]interface{}{
		"breaker":              b.name,
		"from":                 from.String(),
		"to":                   to.String(),
		"consecutive_failures": b.counts.ConsecutiveFailures,
	}
	if to == StateOpen {
		b.logger.Warn("Circuit breaker opened", fields)
	} else {
		b.logger.Info("Circuit breaker state change", fields)
	}

	if b.onChange != nil {
		go b.onChange(b.name, from, to)
	}
}

// State returns the current circuit breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Surface that a cooldown has elapsed even before the next call.
	if b.state == StateOpen && time.Since(b.openedAt) >= b.config.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Stats returns circuit breaker statistics for health reporting.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"name":                 b.name,
		"state":                b.state.String(),
		"requests":             b.counts.Requests,
		"successes":            b.counts.Successes,
		"failures":             b.counts.Failures,
		"consecutive_failures": b.counts.ConsecutiveFailures,
		"rejected":             b.counts.Rejected,
	}
}
