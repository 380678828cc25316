package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotFound means the requested repository file does not exist.
var ErrNotFound = errors.New("github: file not found")

// ErrTooLarge means a raw file exceeds the Bluesky image limit.
var ErrTooLarge = errors.New("github: file too large")

// maxImageBytes is the largest image Bluesky accepts.
const maxImageBytes = 1_000_000

// GitHub reads and writes repository files through the Contents API and
// serves published files from the raw host.
type GitHub struct {
	Token      string
	Owner      string
	Repo       string
	APIBase    string
	RawBase    string
	HTTPClient *http.Client
}

func NewGitHub(token, owner, repo string) *GitHub {
	return &GitHub{
		Token:      token,
		Owner:      owner,
		Repo:       repo,
		APIBase:    "https://api.github.com",
		RawBase:    "https://raw.githubusercontent.com",
		HTTPClient: defaultHTTPClient,
	}
}

func (g *GitHub) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.APIBase, g.Owner, g.Repo, path)
}

func (g *GitHub) authHeaders() map[string]string {
	return map[string]string{
		"Authorization": "token " + g.Token,
		"Accept":        "application/vnd.github.v3+json",
	}
}

// GetFile fetches a repository file, returning its decoded content and
// blob SHA. The SHA is what PutFile needs to overwrite the file.
func (g *GitHub) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	var resp struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	err := getJSON(ctx, g.HTTPClient, g.contentsURL(path), g.authHeaders(), &resp)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("github: %w", err)
	}
	content, err := base64.StdEncoding.DecodeString(stripNewlines(resp.Content))
	if err != nil {
		return nil, "", fmt.Errorf("github: decode content: %w", err)
	}
	return content, resp.SHA, nil
}

// FileSHA returns the blob SHA of path, or "" when the file is missing.
func (g *GitHub) FileSHA(ctx context.Context, path string) (string, error) {
	_, sha, err := g.GetFile(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return sha, err
}

// PutFile creates or updates a file on main. Pass the current blob SHA
// to overwrite; an empty SHA creates the file.
func (g *GitHub) PutFile(ctx context.Context, path, message string, content []byte, sha string) error {
	body := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  "main",
	}
	if sha != "" {
		body["sha"] = sha
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, v := range g.authHeaders() {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := do(g.HTTPClient, req, nil); err != nil {
		return fmt.Errorf("github: %w", err)
	}
	return nil
}

// RawURL is the public URL path is served from after push.
func (g *GitHub) RawURL(path string) string {
	return fmt.Sprintf("%s/%s/%s/main/%s", g.RawBase, g.Owner, g.Repo, path)
}

// RawExists checks that the raw host serves path.
func (g *GitHub) RawExists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.RawURL(path), nil)
	if err != nil {
		return false, err
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("github: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// FetchRaw downloads path from the raw host, refusing files over the
// Bluesky image limit.
func (g *GitHub) FetchRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.RawURL(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(req, resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("github: read raw file: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("github: file %s: %w", path, ErrTooLarge)
	}
	return data, nil
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
