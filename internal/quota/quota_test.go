package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeCounter struct {
	counts      map[string]int64
	ttls        map[string]int64
	incrErr     error
	expireFails int // number of Expire calls that fail before succeeding
	ttlErr      error
	expires     []string
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int64), ttls: make(map[string]int64)}
}

func (f *fakeCounter) Incr(_ context.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) Expire(_ context.Context, key string, seconds int) error {
	if f.expireFails > 0 {
		f.expireFails--
		return errors.New("timeout")
	}
	f.expires = append(f.expires, key)
	f.ttls[key] = int64(seconds)
	return nil
}

func (f *fakeCounter) TTL(_ context.Context, key string) (int64, error) {
	if f.ttlErr != nil {
		return 0, f.ttlErr
	}
	ttl, ok := f.ttls[key]
	if !ok {
		return -1, nil
	}
	return ttl, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAllowUnderLimit(t *testing.T) {
	g := NewGuard(newFakeCounter(), testLogger())
	for i := 0; i < 3; i++ {
		res := g.Allow(context.Background(), "diary", "1.2.3.4", 3)
		if !res.Allowed {
			t.Fatalf("request %d denied under limit", i+1)
		}
	}
}

func TestDenyOverLimit(t *testing.T) {
	g := NewGuard(newFakeCounter(), testLogger())
	for i := 0; i < 3; i++ {
		g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	}
	res := g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	if res.Allowed {
		t.Fatal("fourth request allowed over limit of 3")
	}
	if !res.Store {
		t.Fatal("store-backed denial marked as store failure")
	}
	if res.RetryWait <= 0 || res.RetryWait > 24*time.Hour {
		t.Fatalf("retry wait = %v", res.RetryWait)
	}
}

func TestFailClosedOnStoreError(t *testing.T) {
	fc := newFakeCounter()
	fc.incrErr = errors.New("connection refused")
	g := NewGuard(fc, testLogger())
	res := g.Allow(context.Background(), "diary", "1.2.3.4", 100)
	if res.Allowed {
		t.Fatal("request allowed while counter store is down")
	}
	if res.Store {
		t.Fatal("store failure not reported")
	}
}

func TestFirstIncrementSetsTTL(t *testing.T) {
	fc := newFakeCounter()
	g := NewGuard(fc, testLogger())
	g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	if len(fc.expires) != 1 {
		t.Fatalf("expire calls = %d, want 1", len(fc.expires))
	}
}

func TestExpireRetrySucceeds(t *testing.T) {
	fc := newFakeCounter()
	fc.expireFails = 1
	g := NewGuard(fc, testLogger())
	res := g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	if !res.Allowed {
		t.Fatal("request denied although the expiry retry succeeded")
	}
	if len(fc.expires) != 1 {
		t.Fatalf("expire calls recorded = %d, want 1", len(fc.expires))
	}
}

func TestExpireRaceAccepted(t *testing.T) {
	fc := newFakeCounter()
	fc.expireFails = 1
	fc.ttls["rl:diary:1.2.3.4:"+time.Now().UTC().Format("2006-01-02")] = 100
	g := NewGuard(fc, testLogger())
	res := g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	if !res.Allowed {
		t.Fatal("request denied although a concurrent writer set the TTL")
	}
}

func TestFailClosedWhenExpiryUnconfirmed(t *testing.T) {
	fc := newFakeCounter()
	fc.expireFails = 2
	g := NewGuard(fc, testLogger())
	res := g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	if res.Allowed {
		t.Fatal("request allowed with a counter that never expires")
	}
	if res.Store {
		t.Fatal("unconfirmed expiry not reported as store failure")
	}

	fc.ttlErr = errors.New("timeout")
	fc.expireFails = 1
	res = g.Allow(context.Background(), "diary", "5.6.7.8", 3)
	if res.Allowed {
		t.Fatal("request allowed when the TTL recheck itself failed")
	}
}

func TestTTLRepairOnLaterHit(t *testing.T) {
	fc := newFakeCounter()
	g := NewGuard(fc, testLogger())
	key := "rl:diary:1.2.3.4:" + time.Now().UTC().Format("2006-01-02")

	// Simulate a counter that lost its expiry.
	g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	delete(fc.ttls, key)

	g.Allow(context.Background(), "diary", "1.2.3.4", 3)
	if fc.ttls[key] == 0 {
		t.Fatal("second hit did not repair the missing TTL")
	}
}

func TestIPsIsolated(t *testing.T) {
	g := NewGuard(newFakeCounter(), testLogger())
	g.Allow(context.Background(), "diary", "1.2.3.4", 1)
	res := g.Allow(context.Background(), "diary", "5.6.7.8", 1)
	if !res.Allowed {
		t.Fatal("second IP shares first IP's counter")
	}
}

func TestActionsIsolated(t *testing.T) {
	g := NewGuard(newFakeCounter(), testLogger())
	g.Allow(context.Background(), "diary", "1.2.3.4", 1)
	res := g.Allow(context.Background(), "image", "1.2.3.4", 1)
	if !res.Allowed {
		t.Fatal("actions share a counter")
	}
}
