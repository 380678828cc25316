package deadline

import (
	"testing"
	"time"
)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRemainingFresh(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	b := NewAt(25*time.Second, c.now)
	left, ok := b.Remaining()
	if !ok {
		t.Fatal("fresh budget exhausted")
	}
	if left != 23*time.Second {
		t.Fatalf("remaining = %v, want 23s", left)
	}
}

func TestRemainingExhausted(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	b := NewAt(25*time.Second, c.now)
	c.advance(23 * time.Second)
	if _, ok := b.Remaining(); ok {
		t.Fatal("budget inside margin reported usable")
	}
	c.advance(10 * time.Second)
	if left, ok := b.Remaining(); ok || left != 0 {
		t.Fatalf("overrun budget: left=%v ok=%v", left, ok)
	}
}

func TestForCallCeiling(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	b := NewAt(25*time.Second, c.now)
	d, ok := b.ForCall(10 * time.Second)
	if !ok || d != 10*time.Second {
		t.Fatalf("ForCall = %v ok=%v, want 10s", d, ok)
	}
}

func TestForCallClampedToRemaining(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	b := NewAt(25*time.Second, c.now)
	c.advance(20 * time.Second)
	d, ok := b.ForCall(10 * time.Second)
	if !ok || d != 3*time.Second {
		t.Fatalf("ForCall = %v ok=%v, want 3s", d, ok)
	}
}

func TestForCallExhausted(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	b := NewAt(25*time.Second, c.now)
	c.advance(24 * time.Second)
	if _, ok := b.ForCall(10 * time.Second); ok {
		t.Fatal("exhausted budget granted a call")
	}
}
