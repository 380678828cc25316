package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Threads posts images through the Threads API. Same container flow as
// Instagram, with a backoff schedule and two extra terminal states.
type Threads struct {
	Token      string
	UserID     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewThreads(token, userID string) *Threads {
	return &Threads{
		Token:      token,
		UserID:     userID,
		BaseURL:    "https://graph.threads.net/v1.0",
		HTTPClient: defaultHTTPClient,
	}
}

// PollIntervals backs off from 3s to 5s across five rounds.
func (th *Threads) PollIntervals() []time.Duration {
	return []time.Duration{3 * time.Second, 3 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}
}

func (th *Threads) bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + th.Token}
}

// CreateContainer registers an image post and returns the container ID.
func (th *Threads) CreateContainer(ctx context.Context, imageURL, text string) (string, error) {
	form := url.Values{
		"media_type": {"IMAGE"},
		"image_url":  {imageURL},
		"text":       {text},
	}
	var resp struct {
		ID string `json:"id"`
	}
	err := postForm(ctx, th.HTTPClient, th.BaseURL+"/"+th.UserID+"/threads", th.bearer(), form, &resp)
	if err != nil {
		if code := graphErrorCode(err); code == 190 || code == 102 {
			return "", fmt.Errorf("threads: %w", ErrTokenExpired)
		}
		return "", fmt.Errorf("threads: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("threads: container response missing id")
	}
	return resp.ID, nil
}

// ContainerStatus reports the processing state of a container. PUBLISHED
// means the platform already went live without an explicit publish call;
// the caller must skip Publish and treat the container ID as the post ID.
func (th *Threads) ContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error) {
	var resp struct {
		Status string `json:"status"`
	}
	u := fmt.Sprintf("%s/%s?fields=id,status,error_message", th.BaseURL, containerID)
	if err := getJSON(ctx, th.HTTPClient, u, th.bearer(), &resp); err != nil {
		return StatusPending, fmt.Errorf("threads: %w", err)
	}
	switch resp.Status {
	case "FINISHED":
		return StatusReady, nil
	case "PUBLISHED":
		return StatusPublished, nil
	case "ERROR":
		return StatusFailed, nil
	case "EXPIRED":
		return StatusExpired, nil
	default:
		return StatusPending, nil
	}
}

// Publish turns a finished container into a live post.
func (th *Threads) Publish(ctx context.Context, containerID string) (string, error) {
	form := url.Values{"creation_id": {containerID}}
	var resp struct {
		ID string `json:"id"`
	}
	err := postForm(ctx, th.HTTPClient, th.BaseURL+"/"+th.UserID+"/threads_publish", th.bearer(), form, &resp)
	if err != nil {
		return "", fmt.Errorf("threads: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("threads: publish response missing id")
	}
	return resp.ID, nil
}

// RefreshToken exchanges a long-lived token for a fresh one. Used by the
// CLI; the new token goes back into the deployment's environment. The
// refresh endpoint lives at the API root, not under the versioned path.
func (th *Threads) RefreshToken(ctx context.Context) (string, int64, error) {
	u := fmt.Sprintf("%s/refresh_access_token?grant_type=th_refresh_token&access_token=%s",
		strings.TrimSuffix(th.BaseURL, "/v1.0"), url.QueryEscape(th.Token))
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := getJSON(ctx, th.HTTPClient, u, nil, &resp); err != nil {
		return "", 0, fmt.Errorf("threads: refresh token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", 0, errors.New("threads: refresh response missing token")
	}
	return resp.AccessToken, resp.ExpiresIn, nil
}
