// Package token verifies the admin JWTs that protect every mutating
// endpoint, and implements the short-lived capability tokens the diary
// page embeds in image generation links.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminSubject is the only subject accepted on admin tokens.
const AdminSubject = "diary-admin"

// Leeway tolerated on exp and nbf checks.
const Leeway = 60 * time.Second

var (
	ErrNoSecret  = errors.New("token: signing secret not configured")
	ErrMalformed = errors.New("token: malformed token")
	ErrInvalid   = errors.New("token: verification failed")
)

// Verifier checks admin bearer tokens. The signing method is pinned to
// HS256 and exp is mandatory; a token without an expiry never verifies.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithLeeway(Leeway),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks signature, exp, nbf and subject. It returns the claims on
// success so callers can log the token's identity.
func (v *Verifier) Verify(raw string) (jwt.MapClaims, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}
	if strings.Count(raw, ".") != 2 {
		return nil, ErrMalformed
	}
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if sub, _ := claims.GetSubject(); sub != AdminSubject {
		return nil, fmt.Errorf("%w: unexpected subject", ErrInvalid)
	}
	return claims, nil
}

// Issue signs an admin token valid for ttl. Used by the CLI.
func Issue(secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	claims := jwt.MapClaims{
		"sub": AdminSubject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}

// CapabilityTTL is how long an image capability token stays valid.
const CapabilityTTL = 5 * time.Minute

// IssueCapability mints a "timestamp:mac" token binding date to the issue
// time. The MAC covers "date:timestamp" so a token for one diary entry
// cannot be replayed against another.
func IssueCapability(secret, date string, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return ts + ":" + capabilityMAC(secret, date, ts), nil
}

// VerifyCapability checks a capability token against date. Comparison is
// constant time and the embedded timestamp must be within CapabilityTTL.
func VerifyCapability(secret, date, token string, now time.Time) error {
	if secret == "" {
		return ErrNoSecret
	}
	ts, mac, ok := strings.Cut(token, ":")
	if !ok || ts == "" || mac == "" {
		return ErrMalformed
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformed
	}
	age := now.UnixMilli() - issued
	if age < 0 || age > CapabilityTTL.Milliseconds() {
		return fmt.Errorf("%w: token expired", ErrInvalid)
	}
	want := capabilityMAC(secret, date, ts)
	if !hmac.Equal([]byte(mac), []byte(want)) {
		return fmt.Errorf("%w: bad signature", ErrInvalid)
	}
	return nil
}

func capabilityMAC(secret, date, ts string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(date + ":" + ts))
	return hex.EncodeToString(h.Sum(nil))
}
