package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrBadCredentials means Bluesky rejected the identifier or app
// password.
var ErrBadCredentials = errors.New("bluesky: invalid credentials")

// Bluesky posts images over the AT Protocol XRPC endpoints.
type Bluesky struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewBluesky() *Bluesky {
	return &Bluesky{
		BaseURL:    "https://bsky.social",
		HTTPClient: defaultHTTPClient,
	}
}

// Session is an authenticated Bluesky session.
type Session struct {
	AccessJWT string `json:"accessJwt"`
	DID       string `json:"did"`
}

// CreateSession authenticates with an identifier and app password.
func (bs *Bluesky) CreateSession(ctx context.Context, identifier, password string) (*Session, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var session Session
	err := postJSON(ctx, bs.HTTPClient, bs.BaseURL+"/xrpc/com.atproto.server.createSession", nil, body, &session)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("bluesky: %w", err)
	}
	if session.AccessJWT == "" || session.DID == "" {
		return nil, errors.New("bluesky: session response incomplete")
	}
	return &session, nil
}

// UploadBlob uploads PNG bytes and returns the blob reference to embed
// in a post record.
func (bs *Bluesky) UploadBlob(ctx context.Context, session *Session, png []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		bs.BaseURL+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(png))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Authorization", "Bearer "+session.AccessJWT)

	var resp struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := do(bs.HTTPClient, req, &resp); err != nil {
		return nil, fmt.Errorf("bluesky: %w", err)
	}
	if len(resp.Blob) == 0 {
		return nil, errors.New("bluesky: upload response missing blob")
	}
	return resp.Blob, nil
}

// CreatePost publishes text with one embedded image and returns the
// record URI.
func (bs *Bluesky) CreatePost(ctx context.Context, session *Session, text string, blob json.RawMessage, alt string) (string, error) {
	if alt == "" {
		alt = "日記のイメージ画像"
	}
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"embed": map[string]any{
			"$type": "app.bsky.embed.images",
			"images": []map[string]any{
				{"image": blob, "alt": alt},
			},
		},
	}
	body := map[string]any{
		"repo":       session.DID,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}
	headers := map[string]string{"Authorization": "Bearer " + session.AccessJWT}
	var resp struct {
		URI string `json:"uri"`
	}
	err := postJSON(ctx, bs.HTTPClient, bs.BaseURL+"/xrpc/com.atproto.repo.createRecord", headers, body, &resp)
	if err != nil {
		return "", fmt.Errorf("bluesky: %w", err)
	}
	if resp.URI == "" {
		return "", errors.New("bluesky: record response missing uri")
	}
	return resp.URI, nil
}
