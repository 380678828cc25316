package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tanbe3170/my-voice-diary/internal/deadline"
)

func shortIntervals(n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = time.Millisecond
	}
	return out
}

func TestPollReachesReady(t *testing.T) {
	budget := deadline.New(30 * time.Second)
	calls := 0
	status, err := PollContainer(context.Background(), budget, shortIntervals(5), time.Second,
		func(ctx context.Context) (ContainerStatus, error) {
			calls++
			if calls < 3 {
				return StatusPending, nil
			}
			return StatusReady, nil
		})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusReady {
		t.Fatalf("status = %s", status)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPollTerminalFailure(t *testing.T) {
	budget := deadline.New(30 * time.Second)
	status, err := PollContainer(context.Background(), budget, shortIntervals(5), time.Second,
		func(ctx context.Context) (ContainerStatus, error) {
			return StatusFailed, nil
		})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusFailed {
		t.Fatalf("status = %s", status)
	}
}

func TestPollStillPending(t *testing.T) {
	budget := deadline.New(30 * time.Second)
	_, err := PollContainer(context.Background(), budget, shortIntervals(3), time.Second,
		func(ctx context.Context) (ContainerStatus, error) {
			return StatusPending, nil
		})
	if !errors.Is(err, ErrStillPending) {
		t.Fatalf("err = %v, want ErrStillPending", err)
	}
}

func TestPollBudgetExhausted(t *testing.T) {
	// Total inside the margin: no usable time at all.
	budget := deadline.New(time.Second)
	_, err := PollContainer(context.Background(), budget, shortIntervals(3), time.Second,
		func(ctx context.Context) (ContainerStatus, error) {
			t.Fatal("check called with exhausted budget")
			return StatusPending, nil
		})
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
}

func TestPollRetriesTransientErrors(t *testing.T) {
	budget := deadline.New(30 * time.Second)
	calls := 0
	status, err := PollContainer(context.Background(), budget, shortIntervals(5), time.Second,
		func(ctx context.Context) (ContainerStatus, error) {
			calls++
			if calls == 1 {
				return StatusPending, errors.New("upstream 500")
			}
			return StatusPublished, nil
		})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusPublished {
		t.Fatalf("status = %s", status)
	}
}

func TestPollCancelled(t *testing.T) {
	budget := deadline.New(30 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := PollContainer(ctx, budget, []time.Duration{time.Second}, time.Second,
		func(ctx context.Context) (ContainerStatus, error) {
			return StatusPending, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
