package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func TestIssueAndVerify(t *testing.T) {
	raw, err := Issue(secret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := NewVerifier(secret).Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub, _ := claims.GetSubject(); sub != AdminSubject {
		t.Fatalf("sub = %q, want %q", sub, AdminSubject)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := Issue(secret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewVerifier("other").Verify(raw); err == nil {
		t.Fatal("token with wrong secret verified")
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": AdminSubject})
	raw, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewVerifier(secret).Verify(raw); err == nil {
		t.Fatal("token without exp verified")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	raw, err := Issue(secret, time.Hour, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewVerifier(secret).Verify(raw); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestVerifyLeeway(t *testing.T) {
	// Expired 30s ago: inside the 60s leeway, should still verify.
	raw, err := Issue(secret, 0, time.Now().Add(-30*time.Second))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewVerifier(secret).Verify(raw); err != nil {
		t.Fatalf("token inside leeway rejected: %v", err)
	}
}

func TestVerifyRejectsWrongSubject(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewVerifier(secret).Verify(raw); err == nil {
		t.Fatal("token with wrong subject verified")
	}
}

func TestVerifyRejectsUnsignedAlg(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": AdminSubject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewVerifier(secret).Verify(raw); err == nil {
		t.Fatal("alg=none token verified")
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, raw := range []string{"", "abc", "a.b", "a.b.c.d"} {
		if _, err := NewVerifier(secret).Verify(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Verify(%q) = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestVerifyNoSecret(t *testing.T) {
	if _, err := NewVerifier("").Verify("a.b.c"); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("err = %v, want ErrNoSecret", err)
	}
}

func TestCapabilityRoundTrip(t *testing.T) {
	now := time.Now()
	tok, err := IssueCapability(secret, "2026-01-02", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := VerifyCapability(secret, "2026-01-02", tok, now.Add(time.Minute)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCapabilityWrongDate(t *testing.T) {
	now := time.Now()
	tok, err := IssueCapability(secret, "2026-01-02", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := VerifyCapability(secret, "2026-01-03", tok, now); err == nil {
		t.Fatal("token accepted for a different date")
	}
}

func TestCapabilityExpired(t *testing.T) {
	now := time.Now()
	tok, err := IssueCapability(secret, "2026-01-02", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := VerifyCapability(secret, "2026-01-02", tok, now.Add(CapabilityTTL+time.Second)); err == nil {
		t.Fatal("expired capability token verified")
	}
}

func TestCapabilityFutureTimestamp(t *testing.T) {
	now := time.Now()
	tok, err := IssueCapability(secret, "2026-01-02", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := VerifyCapability(secret, "2026-01-02", tok, now); err == nil {
		t.Fatal("future-dated capability token verified")
	}
}

func TestCapabilityMalformed(t *testing.T) {
	for _, tok := range []string{"", "nocolon", ":", "abc:deadbeef"} {
		if err := VerifyCapability(secret, "2026-01-02", tok, time.Now()); err == nil {
			t.Fatalf("VerifyCapability(%q) accepted", tok)
		}
	}
}
