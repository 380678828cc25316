// Package deadline tracks how much of a request's execution budget is
// left, so outbound calls finish before the platform kills the handler.
package deadline

import "time"

// Margin is reserved at the end of the budget for writing the response.
const Margin = 2 * time.Second

// Budget measures time remaining in one request.
type Budget struct {
	start time.Time
	total time.Duration
	now   func() time.Time
}

// New starts a budget of total for a request beginning now.
func New(total time.Duration) *Budget {
	return NewAt(total, time.Now)
}

// NewAt is New with an injectable clock.
func NewAt(total time.Duration, now func() time.Time) *Budget {
	return &Budget{start: now(), total: total, now: now}
}

// Remaining returns the usable time left after reserving Margin, and
// whether any is left at all. When ok is false the caller must stop
// starting work and report the timeout.
func (b *Budget) Remaining() (time.Duration, bool) {
	left := b.total - b.now().Sub(b.start) - Margin
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// ForCall bounds a single outbound call: the smaller of ceiling and the
// remaining budget. ok is false when the budget is exhausted.
func (b *Budget) ForCall(ceiling time.Duration) (time.Duration, bool) {
	left, ok := b.Remaining()
	if !ok {
		return 0, false
	}
	if ceiling < left {
		return ceiling, true
	}
	return left, true
}
