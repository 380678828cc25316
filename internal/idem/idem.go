// Package idem prevents duplicate side effects. A completion record in
// the remote store marks work already done; a short-lived lock keeps two
// concurrent requests from doing the same work at once.
package idem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// LockTTLSeconds bounds how long a crashed holder can block others.
const LockTTLSeconds = 60

var (
	// ErrLocked means another request holds the lock right now.
	ErrLocked = errors.New("idem: operation in progress")
	// ErrStore means the store could not answer; callers must fail closed.
	ErrStore = errors.New("idem: store unavailable")
)

// Records is the slice of the store the manager needs.
type Records interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetNX(ctx context.Context, key, value string, ttlSeconds int) (bool, error)
	Del(ctx context.Context, key string) error
}

// Manager guards one action namespace, e.g. "instagram".
type Manager struct {
	records Records
	action  string
	logger  *slog.Logger
}

func NewManager(records Records, action string, logger *slog.Logger) *Manager {
	return &Manager{records: records, action: action, logger: logger}
}

// Action is the namespace this manager guards.
func (m *Manager) Action() string { return m.action }

// Done returns the stored completion value for subject, if any. A store
// failure surfaces as ErrStore so the caller denies rather than risks a
// duplicate post.
func (m *Manager) Done(ctx context.Context, subject string) (string, bool, error) {
	value, ok, err := m.records.Get(ctx, m.doneKey(subject))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return value, ok, nil
}

// MarkDone records the completion value for subject. The record has no
// expiry; the work must never repeat.
func (m *Manager) MarkDone(ctx context.Context, subject, value string) error {
	if err := m.records.Set(ctx, m.doneKey(subject), value); err != nil {
		// The side effect already happened; log and move on.
		m.logger.Error("idempotency record write failed",
			"action", m.action, "subject", subject, "error", err)
		return err
	}
	return nil
}

// Acquire takes the per-subject lock. The caller must Release it when
// done; if the process dies the TTL frees the lock.
func (m *Manager) Acquire(ctx context.Context, subject string) error {
	won, err := m.records.SetNX(ctx, m.lockKey(subject), "1", LockTTLSeconds)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !won {
		return ErrLocked
	}
	return nil
}

// Release frees the lock. Failures are logged only; the TTL is the
// backstop.
func (m *Manager) Release(ctx context.Context, subject string) {
	if err := m.records.Del(ctx, m.lockKey(subject)); err != nil {
		m.logger.Warn("lock release failed",
			"action", m.action, "subject", subject, "error", err)
	}
}

func (m *Manager) doneKey(subject string) string {
	return fmt.Sprintf("posted:%s:%s", m.action, subject)
}

func (m *Manager) lockKey(subject string) string {
	return fmt.Sprintf("lock:%s:%s", m.action, subject)
}
