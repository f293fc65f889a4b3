package scheduler

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// breakerState mirrors spec.md §4.7's {Closed, Open(until_ts), HalfOpen}
// per-module circuit breaker. Backed by sony/gobreaker/v2 — the same
// wrapping approach r3e-network-service_layer's resilience package
// uses — rather than a hand-rolled state machine.
type breakerState int

const (
	stateClosed breakerState = iota
	stateHalfOpen
	stateOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker wraps one module's gobreaker.CircuitBreaker, configured so
// exactly one probe execution is permitted in HalfOpen (spec.md's
// "allow exactly one probe execution").
type breaker struct {
	gb *gobreaker.CircuitBreaker[any]
}

func newBreaker(failureThreshold int, resetTimeout time.Duration) *breaker {
	settings := gobreaker.Settings{
		MaxRequests: 1,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold)
		},
	}
	return &breaker{gb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (b *breaker) state() breakerState {
	switch b.gb.State() {
	case gobreaker.StateOpen:
		return stateOpen
	case gobreaker.StateHalfOpen:
		return stateHalfOpen
	default:
		return stateClosed
	}
}

// run executes fn under breaker protection. A non-nil error (including
// the over-runtime sentinel the caller constructs) counts as a
// failure. When the breaker rejects the call, gobreaker's own error
// (ErrOpenState, or ErrTooManyRequests while the HalfOpen probe is in
// flight) is returned unchanged; the caller treats it as "module
// skipped this frame" and never propagates it to the frame loop.
func (b *breaker) run(fn func() error) error {
	_, err := b.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}
