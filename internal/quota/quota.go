// Package quota enforces per-IP daily limits through the remote counter
// store. The guard fails closed: when the store is unreachable the
// request is denied, never waved through.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// dayTTL keeps counters alive slightly past their UTC day.
const dayTTL = 86400

// Counter is the slice of the store the guard needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, seconds int) error
	TTL(ctx context.Context, key string) (int64, error)
}

// Guard checks daily quotas keyed by action and client IP.
type Guard struct {
	counter Counter
	logger  *slog.Logger
	now     func() time.Time
}

func NewGuard(counter Counter, logger *slog.Logger) *Guard {
	return &Guard{counter: counter, logger: logger, now: time.Now}
}

// Result reports the quota decision for one request.
type Result struct {
	Allowed   bool
	Count     int64
	Limit     int
	Store     bool // false when the store failed and the denial is fail-closed
	RetryWait time.Duration
}

// Allow counts one request for action from ip against limit. The counter
// key includes the UTC date, so quotas reset at midnight UTC. A fresh
// counter must end up with a one-day TTL; a counter the guard cannot
// confirm an expiry for is treated as a store failure.
func (g *Guard) Allow(ctx context.Context, action, ip string, limit int) Result {
	day := g.now().UTC().Format("2006-01-02")
	key := fmt.Sprintf("rl:%s:%s:%s", action, ip, day)

	count, err := g.counter.Incr(ctx, key)
	if err != nil {
		g.logger.Error("quota counter unavailable", "action", action, "error", err)
		return Result{Allowed: false, Limit: limit}
	}
	if count < 1 {
		g.logger.Error("quota counter returned non-positive count", "key", key, "count", count)
		return Result{Allowed: false, Limit: limit}
	}

	if count == 1 {
		if !g.ensureExpiry(ctx, key) {
			return Result{Allowed: false, Count: count, Limit: limit}
		}
	} else if ttl, err := g.counter.TTL(ctx, key); err == nil && ttl == -1 {
		// A previous request incremented but failed to set the TTL.
		if err := g.counter.Expire(ctx, key, dayTTL); err != nil {
			g.logger.Warn("quota expire repair failed", "key", key, "error", err)
		}
	}

	res := Result{Count: count, Limit: limit, Store: true}
	if count > int64(limit) {
		res.RetryWait = g.untilMidnightUTC()
		return res
	}
	res.Allowed = true
	return res
}

// ensureExpiry sets the one-day TTL on a fresh counter. When Expire
// fails it re-checks the TTL: a positive TTL means a concurrent writer
// already set one, the no-expiry sentinel gets one retry, anything else
// leaves a counter that never expires and the request is refused.
func (g *Guard) ensureExpiry(ctx context.Context, key string) bool {
	err := g.counter.Expire(ctx, key, dayTTL)
	if err == nil {
		return true
	}
	g.logger.Warn("quota expire failed", "key", key, "error", err)

	ttl, terr := g.counter.TTL(ctx, key)
	if terr != nil {
		g.logger.Error("quota expiry unconfirmed", "key", key, "error", terr)
		return false
	}
	if ttl > 0 {
		return true
	}
	if ttl == -1 {
		if rerr := g.counter.Expire(ctx, key, dayTTL); rerr == nil {
			return true
		}
	}
	g.logger.Error("quota counter left without expiry", "key", key, "ttl", ttl)
	return false
}

func (g *Guard) untilMidnightUTC() time.Duration {
	now := g.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(now)
}
