// Package kv is a client for an Upstash-style Redis REST endpoint. Every
// command is a single GET with path-encoded arguments and a Bearer token,
// returning {"result": ...}.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNotConfigured is returned when the REST URL or token is missing.
// Callers that gate side effects on the store must treat it as a denial.
var ErrNotConfigured = errors.New("kv: store not configured")

// Store talks to the remote key-value endpoint.
type Store struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Store. baseURL must not end with a slash.
func New(baseURL, token string) *Store {
	return &Store{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether the store has an endpoint and credentials.
func (s *Store) Configured() bool {
	return s.baseURL != "" && s.token != ""
}

// Incr atomically increments key and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	res, err := s.command(ctx, "incr", key)
	if err != nil {
		return 0, err
	}
	return res.int64()
}

// Expire sets a TTL in seconds on key.
func (s *Store) Expire(ctx context.Context, key string, seconds int) error {
	_, err := s.command(ctx, "expire", key, strconv.Itoa(seconds))
	return err
}

// TTL returns the remaining TTL of key in seconds. A key with no expiry
// returns -1 and a missing key returns -2, matching Redis.
func (s *Store) TTL(ctx context.Context, key string) (int64, error) {
	res, err := s.command(ctx, "ttl", key)
	if err != nil {
		return 0, err
	}
	return res.int64()
}

// Get returns the string value of key. Missing keys return ok=false.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := s.command(ctx, "get", key)
	if err != nil {
		return "", false, err
	}
	if res.isNull() {
		return "", false, nil
	}
	v, err := res.str()
	return v, err == nil, err
}

// Set stores value under key with no expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.command(ctx, "set", key, value)
	return err
}

// SetNX stores value under key with a TTL, only if key does not exist.
// It reports whether the write won.
func (s *Store) SetNX(ctx context.Context, key, value string, ttlSeconds int) (bool, error) {
	res, err := s.command(ctx, "set", key, value, "EX", strconv.Itoa(ttlSeconds), "NX")
	if err != nil {
		return false, err
	}
	return !res.isNull(), nil
}

// Del removes key.
func (s *Store) Del(ctx context.Context, key string) error {
	_, err := s.command(ctx, "del", key)
	return err
}

type result struct {
	Result json.RawMessage `json:"result"`
}

func (r result) isNull() bool {
	return len(r.Result) == 0 || string(r.Result) == "null"
}

func (r result) int64() (int64, error) {
	var n int64
	if err := json.Unmarshal(r.Result, &n); err != nil {
		return 0, fmt.Errorf("kv: unexpected result %s", r.Result)
	}
	return n, nil
}

func (r result) str() (string, error) {
	var v string
	if err := json.Unmarshal(r.Result, &v); err != nil {
		return "", fmt.Errorf("kv: unexpected result %s", r.Result)
	}
	return v, nil
}

func (s *Store) command(ctx context.Context, parts ...string) (result, error) {
	if !s.Configured() {
		return result{}, ErrNotConfigured
	}
	u := s.baseURL
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result{}, fmt.Errorf("kv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return result{}, fmt.Errorf("kv: %s failed (%d): %s", parts[0], resp.StatusCode, body)
	}
	var res result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return result{}, fmt.Errorf("kv: decode response: %w", err)
	}
	return res, nil
}
