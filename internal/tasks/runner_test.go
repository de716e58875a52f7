package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newRunner(workers int) *Runner {
	return New(workers, 50*time.Millisecond, zap.NewNop().Sugar(), WithBaseDelay(time.Millisecond))
}

func Test_Runner_RetriesUntilSuccess(t *testing.T) {
	r := newRunner(1)

	var attempts int32
	r.Enqueue(Task{
		Name: "flaky",
		Run: func(ctx context.Context) error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	})
	r.Shutdown()

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("want 3 attempts, got %d", got)
	}
}

func Test_Runner_GivesUpAfterMaxAttempts(t *testing.T) {
	r := newRunner(1)

	var attempts int32
	r.Enqueue(Task{
		Name:        "doomed",
		MaxAttempts: 3,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("permanent")
		},
	})
	r.Shutdown()

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("want exactly 3 attempts, got %d", got)
	}
}

func Test_Runner_SoftTimeout_CancelsContext(t *testing.T) {
	r := newRunner(1)

	var sawCancel int32
	r.Enqueue(Task{
		Name:        "slow",
		MaxAttempts: 1,
		Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				atomic.StoreInt32(&sawCancel, 1)
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	})
	r.Shutdown()

	if atomic.LoadInt32(&sawCancel) != 1 {
		t.Fatal("task context was never canceled")
	}
}

func Test_Runner_EnqueueAfterShutdown_Rejected(t *testing.T) {
	r := newRunner(1)
	r.Shutdown()

	ok := r.Enqueue(Task{Name: "late", Run: func(ctx context.Context) error { return nil }})
	if ok {
		t.Fatal("enqueue after shutdown should be rejected")
	}
	// Double shutdown is safe.
	r.Shutdown()
}

func Test_Runner_RunsTasksConcurrently(t *testing.T) {
	r := newRunner(4)

	var done int32
	for i := 0; i < 8; i++ {
		r.Enqueue(Task{
			Name: "work",
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&done, 1)
				return nil
			},
		})
	}
	r.Shutdown()

	if got := atomic.LoadInt32(&done); got != 8 {
		t.Fatalf("want 8 completed tasks, got %d", got)
	}
}
