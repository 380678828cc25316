package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestImageGenGenerate(t *testing.T) {
	png := []byte("fake-png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != imageModel || req["size"] != "1024x1024" {
			t.Errorf("req = %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	g := NewImageGen("key")
	g.BaseURL = srv.URL
	got, err := g.Generate(context.Background(), "a rainy day")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(got) != string(png) {
		t.Fatalf("png = %q", got)
	}
}

func TestInstagramCreateContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acct1/media" {
			t.Errorf("path = %s", r.URL.Path)
		}
		r.ParseForm()
		if r.PostForm.Get("image_url") == "" || r.PostForm.Get("caption") == "" {
			t.Errorf("form = %v", r.PostForm)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
	}))
	defer srv.Close()

	ig := NewInstagram("tok", "acct1")
	ig.BaseURL = srv.URL
	id, err := ig.CreateContainer(context.Background(), "https://img", "caption")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "c1" {
		t.Fatalf("id = %q", id)
	}
}

func TestInstagramTokenExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":190,"message":"expired"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	ig := NewInstagram("tok", "acct1")
	ig.BaseURL = srv.URL
	_, err := ig.CreateContainer(context.Background(), "https://img", "caption")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestInstagramContainerStatus(t *testing.T) {
	cases := map[string]ContainerStatus{
		"FINISHED":    StatusReady,
		"ERROR":       StatusFailed,
		"IN_PROGRESS": StatusPending,
	}
	for code, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("fields") != "status_code" {
				t.Errorf("fields = %q", r.URL.Query().Get("fields"))
			}
			json.NewEncoder(w).Encode(map[string]string{"status_code": code})
		}))
		ig := NewInstagram("tok", "acct1")
		ig.BaseURL = srv.URL
		got, err := ig.ContainerStatus(context.Background(), "c1")
		srv.Close()
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if got != want {
			t.Errorf("status %s = %s, want %s", code, got, want)
		}
	}
}

func TestInstagramPublish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acct1/media_publish" {
			t.Errorf("path = %s", r.URL.Path)
		}
		r.ParseForm()
		if r.PostForm.Get("creation_id") != "c1" {
			t.Errorf("creation_id = %q", r.PostForm.Get("creation_id"))
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "post1"})
	}))
	defer srv.Close()

	ig := NewInstagram("tok", "acct1")
	ig.BaseURL = srv.URL
	id, err := ig.Publish(context.Background(), "c1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id != "post1" {
		t.Fatalf("id = %q", id)
	}
}

func TestThreadsContainerStatus(t *testing.T) {
	cases := map[string]ContainerStatus{
		"FINISHED":    StatusReady,
		"PUBLISHED":   StatusPublished,
		"ERROR":       StatusFailed,
		"EXPIRED":     StatusExpired,
		"IN_PROGRESS": StatusPending,
	}
	for code, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": code})
		}))
		th := NewThreads("tok", "user1")
		th.BaseURL = srv.URL
		got, err := th.ContainerStatus(context.Background(), "c1")
		srv.Close()
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if got != want {
			t.Errorf("status %s = %s, want %s", code, got, want)
		}
	}
}

func TestThreadsCreateContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user1/threads" {
			t.Errorf("path = %s", r.URL.Path)
		}
		r.ParseForm()
		if r.PostForm.Get("media_type") != "IMAGE" {
			t.Errorf("media_type = %q", r.PostForm.Get("media_type"))
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "c9"})
	}))
	defer srv.Close()

	th := NewThreads("tok", "user1")
	th.BaseURL = srv.URL
	id, err := th.CreateContainer(context.Background(), "https://img", "text")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "c9" {
		t.Fatalf("id = %q", id)
	}
}

func TestThreadsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refresh_access_token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("grant_type") != "th_refresh_token" || q.Get("access_token") != "old" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "new", "expires_in": 5184000})
	}))
	defer srv.Close()

	th := NewThreads("old", "user1")
	th.BaseURL = srv.URL + "/v1.0"
	tok, ttl, err := th.RefreshToken(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tok != "new" || ttl != 5184000 {
		t.Fatalf("tok=%q ttl=%d", tok, ttl)
	}
}

func TestBlueskyFlow(t *testing.T) {
	var uploaded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			json.NewEncoder(w).Encode(map[string]string{"accessJwt": "jwt1", "did": "did:plc:abc"})
		case "/xrpc/com.atproto.repo.uploadBlob":
			if r.Header.Get("Content-Type") != "image/png" {
				t.Errorf("content type = %q", r.Header.Get("Content-Type"))
			}
			uploaded, _ = io.ReadAll(r.Body)
			json.NewEncoder(w).Encode(map[string]any{
				"blob": map[string]any{"$type": "blob", "size": len(uploaded)},
			})
		case "/xrpc/com.atproto.repo.createRecord":
			var req struct {
				Repo       string `json:"repo"`
				Collection string `json:"collection"`
				Record     struct {
					Text  string          `json:"text"`
					Embed json.RawMessage `json:"embed"`
				} `json:"record"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if req.Repo != "did:plc:abc" || req.Collection != "app.bsky.feed.post" {
				t.Errorf("req = %+v", req)
			}
			if req.Record.Text != "post text" || len(req.Record.Embed) == 0 {
				t.Errorf("record = %+v", req.Record)
			}
			json.NewEncoder(w).Encode(map[string]string{"uri": "at://did:plc:abc/app.bsky.feed.post/xyz"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	bs := NewBluesky()
	bs.BaseURL = srv.URL
	ctx := context.Background()

	session, err := bs.CreateSession(ctx, "alice.bsky.social", "app-pass")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	blob, err := bs.UploadBlob(ctx, session, []byte("png"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	uri, err := bs.CreatePost(ctx, session, "post text", blob, "alt text")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if uri == "" {
		t.Fatal("empty uri")
	}
}

func TestBlueskyBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"AuthenticationRequired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	bs := NewBluesky()
	bs.BaseURL = srv.URL
	_, err := bs.CreateSession(context.Background(), "alice", "bad")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}
