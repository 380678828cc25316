package httpapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Tanbe3170/my-voice-diary/internal/client"
	"github.com/Tanbe3170/my-voice-diary/internal/deadline"
	"github.com/Tanbe3170/my-voice-diary/internal/diary"
	"github.com/Tanbe3170/my-voice-diary/internal/idem"
	"github.com/Tanbe3170/my-voice-diary/internal/token"
)

type createDiaryRequest struct {
	RawText string `json:"rawText"`
}

type createDiaryResponse struct {
	Success    bool     `json:"success"`
	Date       string   `json:"date"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
	FilePath   string   `json:"filePath"`
	GitHubURL  string   `json:"githubUrl"`
	ImageToken string   `json:"imageToken,omitempty"`
}

type generateImageRequest struct {
	Date       string `json:"date"`
	ImageToken string `json:"imageToken"`
}

type generateImageResponse struct {
	Success   bool   `json:"success"`
	ImageURL  string `json:"imageUrl"`
	ImagePath string `json:"imagePath"`
	GitHubURL string `json:"githubUrl"`
}

type postRequest struct {
	Date    string `json:"date"`
	Caption string `json:"caption"`
}

type postResponse struct {
	Success       bool   `json:"success"`
	PostID        string `json:"postId,omitempty"`
	PostURI       string `json:"postUri,omitempty"`
	AlreadyPosted bool   `json:"alreadyPosted,omitempty"`
	Message       string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleCreateDiary godoc
//
//	@Summary		Create a diary entry from raw voice text
//	@Description	Formats the text into a structured entry and commits it to the diary repository.
//	@Tags			diary
//	@Accept			json
//	@Produce		json
//	@Param			request	body		createDiaryRequest	true	"raw transcribed text"
//	@Success		200		{object}	createDiaryResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		401		{object}	errorResponse
//	@Failure		429		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/create-diary [post]
func (s *Server) handleCreateDiary(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req createDiaryRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	text := strings.TrimSpace(req.RawText)
	if text == "" {
		writeError(w, http.StatusBadRequest, errors.New("rawText is required"))
		return
	}
	if len([]rune(text)) > diary.MaxRawText {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("rawText must be %d characters or less", diary.MaxRawText))
		return
	}
	if !s.requireConfigured(w, map[string]string{
		"CLAUDE_API_KEY": s.cfg.ClaudeAPIKey,
		"GITHUB_TOKEN":   s.cfg.GitHubToken,
		"GITHUB_OWNER":   s.cfg.GitHubOwner,
		"GITHUB_REPO":    s.cfg.GitHubRepo,
	}) {
		return
	}
	if !s.allowQuota(w, r, "diary", s.cfg.RateLimits.DiaryPerDay) {
		return
	}

	budget := deadline.New(s.cfg.Deadline)
	now := s.now().UTC()
	date := now.Format("2006-01-02")

	ctx, cancel, ok := s.callCtx(r, budget, timeoutModel)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	entry, err := s.formatter.Format(ctx, text, now)
	cancel()
	if err != nil {
		s.upstreamError(w, "claude", "failed to format the diary entry", err)
		return
	}

	path := diary.EntryPath(date)
	ctx, cancel, ok = s.callCtx(r, budget, timeoutHead)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	sha, err := s.github.FileSHA(ctx, path)
	cancel()
	if err != nil {
		s.upstreamError(w, "github", "failed to store the diary entry", err)
		return
	}

	ctx, cancel, ok = s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	content := diary.Render(entry, date)
	err = s.github.PutFile(ctx, path, diary.CommitMessage(date, entry.Title), []byte(content), sha)
	cancel()
	if err != nil {
		s.upstreamError(w, "github", "failed to store the diary entry", err)
		return
	}

	resp := createDiaryResponse{
		Success:   true,
		Date:      date,
		Title:     entry.Title,
		Tags:      entry.Tags,
		FilePath:  path,
		GitHubURL: s.blobURL(path),
	}
	if s.cfg.ImageTokenSecret != "" {
		capability, err := token.IssueCapability(s.cfg.ImageTokenSecret, date, s.now())
		if err != nil {
			s.logger.Error("image token issue failed", "error", err)
		} else {
			resp.ImageToken = capability
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGenerateImage godoc
//
//	@Summary		Generate and store an image for a diary entry
//	@Description	Renders the entry's stored image prompt with the image model and commits the PNG next to the entry.
//	@Tags			diary
//	@Accept			json
//	@Produce		json
//	@Param			request	body		generateImageRequest	true	"entry date and single-use image token"
//	@Success		200		{object}	generateImageResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		401		{object}	errorResponse
//	@Failure		404		{object}	errorResponse
//	@Failure		429		{object}	errorResponse
//	@Router			/api/generate-image [post]
func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if !diary.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, errBadDate)
		return
	}
	if s.cfg.ImageTokenSecret == "" {
		s.logger.Error("required configuration missing", "settings", []string{"IMAGE_TOKEN_SECRET"})
		writeError(w, http.StatusInternalServerError, errors.New("server configuration problem"))
		return
	}
	if err := token.VerifyCapability(s.cfg.ImageTokenSecret, req.Date, req.ImageToken, s.now()); err != nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid or expired image token"))
		return
	}
	if !s.requireConfigured(w, map[string]string{
		"OPENAI_API_KEY": s.cfg.OpenAIAPIKey,
		"GITHUB_TOKEN":   s.cfg.GitHubToken,
		"GITHUB_OWNER":   s.cfg.GitHubOwner,
		"GITHUB_REPO":    s.cfg.GitHubRepo,
	}) {
		return
	}
	if !s.allowQuota(w, r, "image", s.cfg.RateLimits.ImagePerDay) {
		return
	}

	budget := deadline.New(s.cfg.Deadline)

	ctx, cancel, ok := s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	content, _, err := s.github.GetFile(ctx, diary.EntryPath(req.Date))
	cancel()
	if errors.Is(err, client.ErrNotFound) {
		writeError(w, http.StatusNotFound, errors.New("diary entry not found for this date"))
		return
	}
	if err != nil {
		s.upstreamError(w, "github", "failed to load the diary entry", err)
		return
	}
	doc := diary.ParseDocument(string(content))
	if doc.ImagePrompt == "" {
		writeError(w, http.StatusBadRequest, errors.New("diary entry has no image prompt"))
		return
	}

	ctx, cancel, ok = s.callCtx(r, budget, timeoutModel)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	png, err := s.imageGen.Generate(ctx, doc.ImagePrompt)
	cancel()
	if err != nil {
		s.upstreamError(w, "openai", "failed to generate the image", err)
		return
	}

	imagePath := diary.ImagePath(req.Date)
	ctx, cancel, ok = s.callCtx(r, budget, timeoutHead)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	sha, err := s.github.FileSHA(ctx, imagePath)
	cancel()
	if err != nil {
		s.upstreamError(w, "github", "failed to store the image", err)
		return
	}

	ctx, cancel, ok = s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	err = s.github.PutFile(ctx, imagePath, diary.ImageCommitMessage(req.Date), png, sha)
	cancel()
	if err != nil {
		s.upstreamError(w, "github", "failed to store the image", err)
		return
	}

	writeJSON(w, http.StatusOK, generateImageResponse{
		Success:   true,
		ImageURL:  s.github.RawURL(imagePath),
		ImagePath: imagePath,
		GitHubURL: s.blobURL(imagePath),
	})
}

// handlePostInstagram godoc
//
//	@Summary		Post a diary entry to Instagram
//	@Description	Publishes the entry's image with a caption through the Graph API container flow.
//	@Tags			posting
//	@Accept			json
//	@Produce		json
//	@Param			request	body		postRequest	true	"entry date and optional caption override"
//	@Success		200		{object}	postResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		401		{object}	errorResponse
//	@Failure		404		{object}	errorResponse
//	@Failure		409		{object}	errorResponse
//	@Failure		429		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/post-instagram [post]
func (s *Server) handlePostInstagram(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if !diary.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, errBadDate)
		return
	}
	if len([]rune(req.Caption)) > diary.MaxInstagramCaption {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("caption must be %d characters or less", diary.MaxInstagramCaption))
		return
	}
	if !s.requireConfigured(w, map[string]string{
		"INSTAGRAM_ACCESS_TOKEN":        s.cfg.InstagramToken,
		"INSTAGRAM_BUSINESS_ACCOUNT_ID": s.cfg.InstagramAccountID,
		"GITHUB_TOKEN":                  s.cfg.GitHubToken,
		"GITHUB_OWNER":                  s.cfg.GitHubOwner,
		"GITHUB_REPO":                   s.cfg.GitHubRepo,
		"UPSTASH_REDIS_REST_URL":        s.cfg.UpstashURL,
		"UPSTASH_REDIS_REST_TOKEN":      s.cfg.UpstashToken,
	}) {
		return
	}
	if !s.allowQuota(w, r, "instagram", s.cfg.RateLimits.InstagramPerDay) {
		return
	}
	if !s.beginPost(w, r, s.idemInstagram, req.Date) {
		return
	}
	defer s.idemInstagram.Release(context.WithoutCancel(r.Context()), req.Date)

	budget := deadline.New(s.cfg.Deadline)
	doc, ok := s.loadEntry(w, r, budget, req.Date)
	if !ok {
		return
	}
	imageURL, ok := s.requireImage(w, r, budget, req.Date)
	if !ok {
		return
	}

	caption := diary.TruncateRunes(diary.Caption(req.Caption, doc, true), diary.MaxInstagramCaption)

	ctx, cancel, ok := s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	containerID, err := s.instagram.CreateContainer(ctx, imageURL, caption)
	cancel()
	if errors.Is(err, client.ErrTokenExpired) {
		writeError(w, http.StatusUnauthorized, errTokenExpired)
		return
	}
	if err != nil {
		s.upstreamError(w, "instagram", "failed to create the media container", err)
		return
	}

	status, err := client.PollContainer(r.Context(), budget, s.instagram.PollIntervals(), timeoutStatus,
		func(ctx context.Context) (client.ContainerStatus, error) {
			return s.instagram.ContainerStatus(ctx, containerID)
		})
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, errProcessingTimeout)
		return
	}
	if status != client.StatusReady {
		writeError(w, http.StatusInternalServerError, errors.New("media processing failed"))
		return
	}

	ctx, cancel, ok = s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	postID, err := s.instagram.Publish(ctx, containerID)
	cancel()
	if errors.Is(err, client.ErrTokenExpired) {
		writeError(w, http.StatusUnauthorized, errTokenExpired)
		return
	}
	if err != nil {
		s.upstreamError(w, "instagram", "failed to publish the post", err)
		return
	}

	s.finishPost(r, s.idemInstagram, req.Date, postID)
	writeJSON(w, http.StatusOK, postResponse{
		Success: true,
		PostID:  postID,
		Message: "posted to Instagram",
	})
}

// handlePostThreads godoc
//
//	@Summary		Post a diary entry to Threads
//	@Description	Publishes the entry's image with text through the Threads container flow.
//	@Tags			posting
//	@Accept			json
//	@Produce		json
//	@Param			request	body		postRequest	true	"entry date and optional text override"
//	@Success		200		{object}	postResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		401		{object}	errorResponse
//	@Failure		404		{object}	errorResponse
//	@Failure		409		{object}	errorResponse
//	@Failure		429		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/post-threads [post]
func (s *Server) handlePostThreads(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if !diary.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, errBadDate)
		return
	}
	if len([]rune(req.Caption)) > diary.MaxThreadsText {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("text must be %d characters or less", diary.MaxThreadsText))
		return
	}
	if !s.requireConfigured(w, map[string]string{
		"THREADS_ACCESS_TOKEN":     s.cfg.ThreadsToken,
		"THREADS_USER_ID":          s.cfg.ThreadsUserID,
		"GITHUB_TOKEN":             s.cfg.GitHubToken,
		"GITHUB_OWNER":             s.cfg.GitHubOwner,
		"GITHUB_REPO":              s.cfg.GitHubRepo,
		"UPSTASH_REDIS_REST_URL":   s.cfg.UpstashURL,
		"UPSTASH_REDIS_REST_TOKEN": s.cfg.UpstashToken,
	}) {
		return
	}
	if !s.allowQuota(w, r, "threads", s.cfg.RateLimits.ThreadsPerDay) {
		return
	}
	if !s.beginPost(w, r, s.idemThreads, req.Date) {
		return
	}
	defer s.idemThreads.Release(context.WithoutCancel(r.Context()), req.Date)

	budget := deadline.New(s.cfg.Deadline)
	doc, ok := s.loadEntry(w, r, budget, req.Date)
	if !ok {
		return
	}
	imageURL, ok := s.requireImage(w, r, budget, req.Date)
	if !ok {
		return
	}

	text := diary.TruncateRunes(diary.Caption(req.Caption, doc, false), diary.MaxThreadsText)

	ctx, cancel, ok := s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	containerID, err := s.threads.CreateContainer(ctx, imageURL, text)
	cancel()
	if errors.Is(err, client.ErrTokenExpired) {
		writeError(w, http.StatusUnauthorized, errTokenExpired)
		return
	}
	if err != nil {
		s.upstreamError(w, "threads", "failed to create the media container", err)
		return
	}

	status, err := client.PollContainer(r.Context(), budget, s.threads.PollIntervals(), timeoutStatus,
		func(ctx context.Context) (client.ContainerStatus, error) {
			return s.threads.ContainerStatus(ctx, containerID)
		})
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, errProcessingTimeout)
		return
	}

	var postID string
	switch status {
	case client.StatusPublished:
		// Already live; the platform published it out of band.
		postID = containerID
	case client.StatusReady:
		ctx, cancel, ok = s.callCtx(r, budget, timeoutCall)
		if !ok {
			writeError(w, http.StatusGatewayTimeout, errDeadline)
			return
		}
		postID, err = s.threads.Publish(ctx, containerID)
		cancel()
		if errors.Is(err, client.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, errTokenExpired)
			return
		}
		if err != nil {
			s.upstreamError(w, "threads", "failed to publish the post", err)
			return
		}
	case client.StatusExpired:
		writeError(w, http.StatusInternalServerError, errors.New("media container expired before publishing"))
		return
	default:
		writeError(w, http.StatusInternalServerError, errors.New("media processing failed"))
		return
	}

	s.finishPost(r, s.idemThreads, req.Date, postID)
	writeJSON(w, http.StatusOK, postResponse{
		Success: true,
		PostID:  postID,
		Message: "posted to Threads",
	})
}

// handlePostBluesky godoc
//
//	@Summary		Post a diary entry to Bluesky
//	@Description	Uploads the entry's image as a blob and publishes a post record over XRPC.
//	@Tags			posting
//	@Accept			json
//	@Produce		json
//	@Param			request	body		postRequest	true	"entry date and optional text override"
//	@Success		200		{object}	postResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		401		{object}	errorResponse
//	@Failure		404		{object}	errorResponse
//	@Failure		409		{object}	errorResponse
//	@Failure		429		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/post-bluesky [post]
func (s *Server) handlePostBluesky(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if !diary.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, errBadDate)
		return
	}
	if diary.Graphemes(req.Caption) > diary.MaxBlueskyGraphemes {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("text must be %d characters or less", diary.MaxBlueskyGraphemes))
		return
	}
	if !s.requireConfigured(w, map[string]string{
		"BLUESKY_IDENTIFIER":       s.cfg.BlueskyIdentifier,
		"BLUESKY_APP_PASSWORD":     s.cfg.BlueskyAppPassword,
		"GITHUB_TOKEN":             s.cfg.GitHubToken,
		"GITHUB_OWNER":             s.cfg.GitHubOwner,
		"GITHUB_REPO":              s.cfg.GitHubRepo,
		"UPSTASH_REDIS_REST_URL":   s.cfg.UpstashURL,
		"UPSTASH_REDIS_REST_TOKEN": s.cfg.UpstashToken,
	}) {
		return
	}
	if !s.allowQuota(w, r, "bluesky", s.cfg.RateLimits.BlueskyPerDay) {
		return
	}
	if !s.beginPost(w, r, s.idemBluesky, req.Date) {
		return
	}
	defer s.idemBluesky.Release(context.WithoutCancel(r.Context()), req.Date)

	budget := deadline.New(s.cfg.Deadline)
	doc, ok := s.loadEntry(w, r, budget, req.Date)
	if !ok {
		return
	}

	ctx, cancel, ok := s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	png, err := s.github.FetchRaw(ctx, diary.ImagePath(req.Date))
	cancel()
	if errors.Is(err, client.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNoImage)
		return
	}
	if errors.Is(err, client.ErrTooLarge) {
		writeError(w, http.StatusBadRequest, errors.New("image is too large to post"))
		return
	}
	if err != nil {
		s.upstreamError(w, "github", "failed to load the image", err)
		return
	}

	ctx, cancel, ok = s.callCtx(r, budget, timeoutHead)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	session, err := s.bluesky.CreateSession(ctx, s.cfg.BlueskyIdentifier, s.cfg.BlueskyAppPassword)
	cancel()
	if errors.Is(err, client.ErrBadCredentials) {
		writeError(w, http.StatusUnauthorized, errors.New("platform credentials rejected"))
		return
	}
	if err != nil {
		s.upstreamError(w, "bluesky", "failed to sign in", err)
		return
	}

	ctx, cancel, ok = s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	blob, err := s.bluesky.UploadBlob(ctx, session, png)
	cancel()
	if err != nil {
		s.upstreamError(w, "bluesky", "failed to upload the image", err)
		return
	}

	text := diary.TruncateGraphemes(diary.Caption(req.Caption, doc, false), diary.MaxBlueskyGraphemes)

	ctx, cancel, ok = s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return
	}
	uri, err := s.bluesky.CreatePost(ctx, session, text, blob, "")
	cancel()
	if err != nil {
		s.upstreamError(w, "bluesky", "failed to publish the post", err)
		return
	}

	s.finishPost(r, s.idemBluesky, req.Date, uri)
	writeJSON(w, http.StatusOK, postResponse{
		Success: true,
		PostURI: uri,
		Message: "posted to Bluesky",
	})
}

var (
	errBadDate           = errors.New("invalid or missing date (expected YYYY-MM-DD)")
	errDeadline          = errors.New("request deadline exhausted")
	errTokenExpired      = errors.New("platform access token expired, refresh it and retry")
	errProcessingTimeout = errors.New("timed out waiting for media processing")
	errNoImage           = errors.New("image not found for this date, generate it first")
)

// beginPost runs the shared idempotency preamble for a posting handler:
// answer replays from the posted record, then take the per-date lock.
// A true result means the caller holds the lock and must Release it.
func (s *Server) beginPost(w http.ResponseWriter, r *http.Request, mgr *idem.Manager, date string) bool {
	postID, done, err := mgr.Done(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errTemporary)
		return false
	}
	if done {
		resp := postResponse{
			Success:       true,
			AlreadyPosted: true,
			Message:       "already posted for this date",
		}
		if strings.HasPrefix(postID, "at://") {
			resp.PostURI = postID
		} else {
			resp.PostID = postID
		}
		writeJSON(w, http.StatusOK, resp)
		return false
	}
	if err := mgr.Acquire(r.Context(), date); err != nil {
		if errors.Is(err, idem.ErrLocked) {
			s.metrics.LockConflicts.WithLabelValues(mgr.Action()).Inc()
			writeError(w, http.StatusConflict, errors.New("another request is posting this entry"))
			return false
		}
		writeError(w, http.StatusInternalServerError, errTemporary)
		return false
	}
	return true
}

// finishPost records the post id so replays short-circuit. Failures are
// logged inside the manager; the post already succeeded, so the response
// stays 200 either way.
func (s *Server) finishPost(r *http.Request, mgr *idem.Manager, date, postID string) {
	_ = mgr.MarkDone(context.WithoutCancel(r.Context()), date, postID)
}

// loadEntry fetches and parses the stored entry for date, answering the
// client on any failure.
func (s *Server) loadEntry(w http.ResponseWriter, r *http.Request, budget *deadline.Budget, date string) (diary.Document, bool) {
	ctx, cancel, ok := s.callCtx(r, budget, timeoutCall)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return diary.Document{}, false
	}
	content, _, err := s.github.GetFile(ctx, diary.EntryPath(date))
	cancel()
	if errors.Is(err, client.ErrNotFound) {
		writeError(w, http.StatusNotFound, errors.New("diary entry not found for this date"))
		return diary.Document{}, false
	}
	if err != nil {
		s.upstreamError(w, "github", "failed to load the diary entry", err)
		return diary.Document{}, false
	}
	return diary.ParseDocument(string(content)), true
}

// requireImage verifies the published image exists on the raw host and
// returns its public URL.
func (s *Server) requireImage(w http.ResponseWriter, r *http.Request, budget *deadline.Budget, date string) (string, bool) {
	path := diary.ImagePath(date)
	ctx, cancel, ok := s.callCtx(r, budget, timeoutHead)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, errDeadline)
		return "", false
	}
	exists, err := s.github.RawExists(ctx, path)
	cancel()
	if err != nil {
		s.upstreamError(w, "github", "failed to check the image", err)
		return "", false
	}
	if !exists {
		writeError(w, http.StatusNotFound, errNoImage)
		return "", false
	}
	return s.github.RawURL(path), true
}

// upstreamError logs the real error, bumps the per-service counter and
// hands the client a stable message.
func (s *Server) upstreamError(w http.ResponseWriter, service, message string, err error) {
	s.logger.Error("upstream call failed", "service", service, "error", err)
	s.metrics.UpstreamErrors.WithLabelValues(service).Inc()
	writeError(w, http.StatusInternalServerError, errors.New(message))
}

func (s *Server) blobURL(path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/main/%s",
		s.cfg.GitHubOwner, s.cfg.GitHubRepo, path)
}
