package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrTokenExpired means the platform rejected our access token and it
// needs to be refreshed.
var ErrTokenExpired = errors.New("access token invalid or expired")

// Instagram posts images through the Graph API: create a media
// container, wait for processing, then publish.
type Instagram struct {
	Token      string
	AccountID  string
	BaseURL    string
	HTTPClient *http.Client
}

func NewInstagram(token, accountID string) *Instagram {
	return &Instagram{
		Token:      token,
		AccountID:  accountID,
		BaseURL:    "https://graph.facebook.com/v21.0",
		HTTPClient: defaultHTTPClient,
	}
}

// PollIntervals is the fixed schedule for container status checks.
func (ig *Instagram) PollIntervals() []time.Duration {
	return []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}
}

func (ig *Instagram) bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + ig.Token}
}

// CreateContainer registers imageURL with caption and returns the
// container ID. Graph error codes 190 and 102 surface as
// ErrTokenExpired.
func (ig *Instagram) CreateContainer(ctx context.Context, imageURL, caption string) (string, error) {
	form := url.Values{"image_url": {imageURL}, "caption": {caption}}
	var resp struct {
		ID string `json:"id"`
	}
	err := postForm(ctx, ig.HTTPClient, ig.BaseURL+"/"+ig.AccountID+"/media", ig.bearer(), form, &resp)
	if err != nil {
		if code := graphErrorCode(err); code == 190 || code == 102 {
			return "", fmt.Errorf("instagram: %w", ErrTokenExpired)
		}
		return "", fmt.Errorf("instagram: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("instagram: container response missing id")
	}
	return resp.ID, nil
}

// ContainerStatus reports the processing state of a container.
func (ig *Instagram) ContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error) {
	var resp struct {
		StatusCode string `json:"status_code"`
	}
	u := fmt.Sprintf("%s/%s?fields=status_code", ig.BaseURL, containerID)
	if err := getJSON(ctx, ig.HTTPClient, u, ig.bearer(), &resp); err != nil {
		return StatusPending, fmt.Errorf("instagram: %w", err)
	}
	switch resp.StatusCode {
	case "FINISHED":
		return StatusReady, nil
	case "ERROR":
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

// Publish turns a finished container into a live post and returns the
// post ID.
func (ig *Instagram) Publish(ctx context.Context, containerID string) (string, error) {
	form := url.Values{"creation_id": {containerID}}
	var resp struct {
		ID string `json:"id"`
	}
	err := postForm(ctx, ig.HTTPClient, ig.BaseURL+"/"+ig.AccountID+"/media_publish", ig.bearer(), form, &resp)
	if err != nil {
		return "", fmt.Errorf("instagram: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("instagram: publish response missing id")
	}
	return resp.ID, nil
}
