package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/recboard/internal/jobs"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// verify no goroutine leaks across tests in this package
	goleak.VerifyTestMain(m)
}

func TestSubmitAndProcess(t *testing.T) {
	ctx := context.Background()
	pool := jobs.NewWorkerPool(nil, 2, 8)
	pool.Start(ctx)
	defer pool.Stop()

	handled := make(chan struct{}, 1)
	if err := pool.Submit(func(ctx context.Context) { handled <- struct{}{} }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatalf("task was not run")
	}
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	pool := jobs.NewWorkerPool(nil, 1, 16)
	pool.Start(context.Background())

	var ran atomic.Int32
	for range 10 {
		if err := pool.Submit(func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	pool.Stop()

	if got := ran.Load(); got != 10 {
		t.Fatalf("expected 10 tasks to run before Stop returned, got %d", got)
	}
	if err := pool.Submit(func(ctx context.Context) {}); !errors.Is(err, jobs.ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
	pool.Stop()
}

func TestSubmit_QueueFull(t *testing.T) {
	pool := jobs.NewWorkerPool(nil, 1, 1)
	// not started: the single slot fills and the next submit is rejected
	if err := pool.Submit(func(ctx context.Context) {}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := pool.Submit(func(ctx context.Context) {}); !errors.Is(err, jobs.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	pool.Stop()
}

func TestTaskPanicDoesNotKillWorker(t *testing.T) {
	pool := jobs.NewWorkerPool(nil, 1, 4)
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan struct{})
	_ = pool.Submit(func(ctx context.Context) { panic("boom") })
	_ = pool.Submit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("worker did not survive a panicking task")
	}
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{10, 2 * time.Second},
		{64, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := jobs.BackoffDuration(tt.attempt, 100*time.Millisecond, 2*time.Second); got != tt.want {
			t.Fatalf("attempt %d: got %v want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDuration_LargeBaseDoesNotWrap(t *testing.T) {
	base := 24 * time.Hour * 365 * 100
	for attempt := 1; attempt <= 30; attempt++ {
		got := jobs.BackoffDuration(attempt, base, 48*time.Hour)
		if got != 48*time.Hour {
			t.Fatalf("attempt %d: got %v want capped 48h", attempt, got)
		}
		if got := jobs.BackoffDuration(attempt, base, 0); got <= 0 {
			t.Fatalf("attempt %d without cap: got non-positive %v", attempt, got)
		}
	}
}
