package scheduler

import (
	"time"

	"simkernel/internal/core/ecs"
)

// runWithZombieTolerance runs fn on its own goroutine and races it
// against max_runtime_ms. If fn finishes first, its error is returned
// directly. If the timeout fires first, ModuleTimeout's caller-visible
// signal is returned immediately and fn's goroutine is abandoned — per
// spec.md §5, the scheduler has no safe cancellation primitive, so the
// goroutine becomes a "zombie" whose eventual completion (the result
// sent on done) is simply never received.
func runWithZombieTolerance(maxRuntime time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(maxRuntime):
		return ecs.ErrModuleTimeout
	}
}
