package client

import (
	"context"
	"errors"
	"time"

	"github.com/Tanbe3170/my-voice-diary/internal/deadline"
)

// ContainerStatus is the lifecycle state of a media container while the
// platform processes it.
type ContainerStatus string

const (
	StatusPending   ContainerStatus = "pending"
	StatusReady     ContainerStatus = "ready"
	StatusPublished ContainerStatus = "published"
	StatusFailed    ContainerStatus = "failed"
	StatusExpired   ContainerStatus = "expired"
)

var (
	// ErrBudgetExhausted means the request deadline left no time to keep
	// polling.
	ErrBudgetExhausted = errors.New("poll: request budget exhausted")
	// ErrStillPending means the container never reached a terminal state
	// within the polling schedule.
	ErrStillPending = errors.New("poll: container still processing")
)

// pollReserve is the headroom required before each sleep, covering the
// wait plus the status call that follows.
const pollReserve = 5 * time.Second

// PollContainer waits for a media container to finish processing. Each
// round sleeps the next interval, then calls check with a context bound
// by statusTimeout and the remaining budget. The budget is re-checked
// before and after every sleep so a slow upstream cannot push the
// request past its deadline. Transient check errors are swallowed; the
// next round retries.
func PollContainer(
	ctx context.Context,
	budget *deadline.Budget,
	intervals []time.Duration,
	statusTimeout time.Duration,
	check func(ctx context.Context) (ContainerStatus, error),
) (ContainerStatus, error) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for _, interval := range intervals {
		remaining, ok := budget.Remaining()
		if !ok || remaining < pollReserve {
			return StatusPending, ErrBudgetExhausted
		}
		sleep := interval
		if remaining < sleep {
			sleep = remaining
		}
		timer.Reset(sleep)
		select {
		case <-ctx.Done():
			return StatusPending, ctx.Err()
		case <-timer.C:
		}

		callBudget, ok := budget.ForCall(statusTimeout)
		if !ok {
			return StatusPending, ErrBudgetExhausted
		}
		callCtx, cancel := context.WithTimeout(ctx, callBudget)
		status, err := check(callCtx)
		cancel()
		if err != nil {
			// Transient; retry on the next round.
			continue
		}
		if status != StatusPending {
			return status, nil
		}
	}
	return StatusPending, ErrStillPending
}
