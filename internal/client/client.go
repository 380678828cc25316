// Package client holds the HTTP clients for every upstream the service
// talks to: the formatting model, the image model, GitHub, and the
// social platforms.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// defaultHTTPClient is shared by all upstream clients. Per-call budgets
// come from the request context, so no client-level timeout here.
var defaultHTTPClient = &http.Client{Timeout: 0}

// postJSON sends body as JSON and decodes the response into out. Non-2xx
// responses come back as an error carrying the status and a body excerpt.
func postJSON(ctx context.Context, hc *http.Client, u string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(hc, req, out)
}

// postForm sends URL-encoded form values and decodes the response.
func postForm(ctx context.Context, hc *http.Client, u string, headers map[string]string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(hc, req, out)
}

// getJSON fetches u and decodes the response.
func getJSON(ctx context.Context, hc *http.Client, u string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(hc, req, out)
}

func do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(req, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Host, err)
	}
	return nil
}

// StatusError is a non-2xx upstream response. Body holds up to 2 KiB of
// the response for logging; handlers never forward it to clients.
type StatusError struct {
	Method string
	Host   string
	Code   int
	Body   []byte
}

func newStatusError(req *http.Request, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{Method: req.Method, Host: req.URL.Host, Code: resp.StatusCode, Body: body}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed (%d): %s", e.Method, e.Host, e.Code, e.Body)
}

// graphErrorCode digs the platform error code out of a Meta Graph API
// error body. Returns 0 when there is none.
func graphErrorCode(err error) int {
	var se *StatusError
	if !errors.As(err, &se) {
		return 0
	}
	var parsed struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(se.Body, &parsed) != nil {
		return 0
	}
	return parsed.Error.Code
}
