package jobs

import (
	"context"
	"errors"
	"math"
	"time"
)

// Task is a unit of background work. The context is the pool's context; tasks
// that talk to the network should derive their own deadline from it.
type Task func(ctx context.Context)

var (
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("worker pool queue full")
)

// BackoffDuration returns exponential backoff duration for attempt n, starting
// at base and capped at max.
func BackoffDuration(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt <= 0 {
		return base
	}
	if attempt > 30 {
		return ceiling(max)
	}
	mult := time.Duration(1 << uint(attempt))
	d := base * mult
	if d/mult != base {
		return ceiling(max)
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func ceiling(max time.Duration) time.Duration {
	if max > 0 {
		return max
	}
	return time.Duration(math.MaxInt64)
}

// small contract description
// inputs: tasks submitted by boards (store reconciliation calls)
// outputs: none; tasks report through their own channels
// error modes: full queue and stopped pool are reported synchronously by Submit
