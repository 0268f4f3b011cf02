package translator

import (
	"sync"
	"time"
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// breaker trips a backend off after repeated failures and holds it off for
// a cooldown window. Once the cooldown has elapsed it moves to HALF_OPEN,
// where every call is allowed through; the number of concurrent trial
// calls is not limited, and the first recorded result closes or reopens
// the circuit. It guards against hammering a provider that is already down.
type breaker struct {
	mu               sync.Mutex
	state            circuitState
	failures         int
	failureThreshold int
	cooldown         time.Duration
	openedAt         time.Time
}

func newBreaker(failureThreshold int, cooldown time.Duration) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &breaker{failureThreshold: failureThreshold, cooldown: cooldown}
}

// allow reports whether a call may proceed right now, transitioning OPEN
// to HALF_OPEN once the cooldown has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = circuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// recordSuccess closes the circuit and resets the failure count.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = circuitClosed
	b.failures = 0
}

// recordFailure increments the failure count and opens the circuit once
// the threshold is reached, or immediately re-opens from HALF_OPEN.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.state = circuitOpen
		b.openedAt = time.Now()
		return
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = circuitOpen
		b.openedAt = time.Now()
	}
}
