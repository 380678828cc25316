package httpapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tanbe3170/my-voice-diary/internal/client"
	"github.com/Tanbe3170/my-voice-diary/internal/config"
	"github.com/Tanbe3170/my-voice-diary/internal/deadline"
	"github.com/Tanbe3170/my-voice-diary/internal/idem"
	"github.com/Tanbe3170/my-voice-diary/internal/kv"
	"github.com/Tanbe3170/my-voice-diary/internal/metrics"
	"github.com/Tanbe3170/my-voice-diary/internal/origin"
	"github.com/Tanbe3170/my-voice-diary/internal/quota"
	"github.com/Tanbe3170/my-voice-diary/internal/token"

	_ "github.com/Tanbe3170/my-voice-diary/docs" // swagger docs

	httpSwagger "github.com/swaggo/http-swagger"
)

// Call ceilings for outbound requests. Each is further clamped by the
// remaining request budget.
const (
	timeoutStatus = 3 * time.Second
	timeoutHead   = 5 * time.Second
	timeoutCall   = 8 * time.Second
	timeoutModel  = 20 * time.Second
)

type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	origin  *origin.Guard
	tokens  *token.Verifier
	quota   *quota.Guard
	metrics *metrics.Metrics

	formatter *client.Formatter
	imageGen  *client.ImageGen
	github    *client.GitHub
	instagram *client.Instagram
	threads   *client.Threads
	bluesky   *client.Bluesky

	idemInstagram *idem.Manager
	idemThreads   *idem.Manager
	idemBluesky   *idem.Manager

	metricsHandler http.Handler
	now            func() time.Time
}

func NewServer(cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) *Server {
	store := kv.New(cfg.UpstashURL, cfg.UpstashToken)
	m := metrics.New(reg)
	return &Server{
		cfg:           cfg,
		logger:        logger,
		origin:        origin.NewGuard(cfg.AllowedOrigins),
		tokens:        token.NewVerifier(cfg.JWTSecret),
		quota:         quota.NewGuard(store, logger),
		metrics:       m,
		formatter:     client.NewFormatter(cfg.ClaudeAPIKey),
		imageGen:      client.NewImageGen(cfg.OpenAIAPIKey),
		github:        client.NewGitHub(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo),
		instagram:     client.NewInstagram(cfg.InstagramToken, cfg.InstagramAccountID),
		threads:       client.NewThreads(cfg.ThreadsToken, cfg.ThreadsUserID),
		bluesky:       client.NewBluesky(),
		idemInstagram: idem.NewManager(store, "instagram", logger),
		idemThreads:   idem.NewManager(store, "threads", logger),
		idemBluesky:   idem.NewManager(store, "bluesky", logger),
		metricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry: reg,
		}),
		now: time.Now,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/"):
		s.handleAPI(w, r)
	case path == "/healthz":
		s.handleHealthz(w, r)
	case path == "/metrics":
		s.metricsHandler.ServeHTTP(w, r)
	case strings.HasPrefix(path, "/swagger/"):
		httpSwagger.WrapHandler.ServeHTTP(w, r)
	default:
		notFound(w)
	}
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(strings.TrimPrefix(r.URL.Path, "/api"))
	if len(segments) != 1 {
		notFound(w)
		return
	}
	action := segments[0]
	var handle func(http.ResponseWriter, *http.Request)
	switch action {
	case "create-diary":
		handle = s.handleCreateDiary
	case "generate-image":
		handle = s.handleGenerateImage
	case "post-instagram":
		handle = s.handlePostInstagram
	case "post-threads":
		handle = s.handlePostThreads
	case "post-bluesky":
		handle = s.handlePostBluesky
	default:
		notFound(w)
		return
	}

	if !s.origin.Check(w, r) {
		writeError(w, http.StatusForbidden, errors.New("origin not allowed"))
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	start := s.now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	handle(sw, r)
	elapsed := s.now().Sub(start)
	s.metrics.Requests.WithLabelValues(action, strconv.Itoa(sw.code)).Inc()
	s.metrics.Duration.WithLabelValues(action).Observe(elapsed.Seconds())
	s.logger.Info("request",
		"id", requestID, "handler", action, "code", sw.code, "duration", elapsed)
}

// handleHealthz godoc
//
//	@Summary	Liveness probe
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusWriter remembers the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.code = code
	sw.ResponseWriter.WriteHeader(code)
}

// requireAdmin checks the caller's credential: an admin JWT in either
// the Authorization header or the legacy X-Auth-Token header. When JWT
// verification fails and the deprecated shared token is configured, a
// constant-time compare against it is the fallback, logged as such.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	cred := r.Header.Get("X-Auth-Token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		cred = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cred == "" {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return false
	}
	if _, err := s.tokens.Verify(cred); err == nil {
		return true
	}
	if s.cfg.LegacyAuthToken != "" &&
		subtle.ConstantTimeCompare([]byte(cred), []byte(s.cfg.LegacyAuthToken)) == 1 {
		s.logger.Warn("deprecated shared token used; migrate the caller to a JWT",
			"ip", s.clientIP(r))
		return true
	}
	s.logger.Warn("credential rejected", "ip", s.clientIP(r))
	writeError(w, http.StatusUnauthorized, errors.New("authentication failed"))
	return false
}

// allowQuota enforces the daily per-IP limit for action. Store failures
// deny the request outright.
func (s *Server) allowQuota(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	res := s.quota.Allow(r.Context(), action, s.clientIP(r), limit)
	if res.Allowed {
		return true
	}
	if !res.Store {
		writeError(w, http.StatusInternalServerError, errTemporary)
		return false
	}
	s.metrics.QuotaDenials.WithLabelValues(action).Inc()
	w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryWait.Seconds())))
	writeError(w, http.StatusTooManyRequests,
		fmt.Errorf("daily limit reached (%d per day), try again tomorrow", limit))
	return false
}

// requireConfigured verifies the named settings are non-empty. Missing
// values are logged by name; the client only learns that configuration
// is broken.
func (s *Server) requireConfigured(w http.ResponseWriter, settings map[string]string) bool {
	var missing []string
	for name, value := range settings {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return true
	}
	s.logger.Error("required configuration missing", "settings", missing)
	writeError(w, http.StatusInternalServerError, errors.New("server configuration problem"))
	return false
}

// callCtx bounds one outbound call by ceiling and the remaining request
// budget. ok is false when the budget is spent; the caller must answer
// 504 and stop.
func (s *Server) callCtx(r *http.Request, budget *deadline.Budget, ceiling time.Duration) (context.Context, context.CancelFunc, bool) {
	d, ok := budget.ForCall(ceiling)
	if !ok {
		return nil, nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), d)
	return ctx, cancel, true
}

// clientIP resolves the caller's address. The platform header wins over
// the generic forwarding header, IPv4-mapped prefixes are stripped, and
// anything unparseable collapses to "unknown" so quota keys stay sane.
func (s *Server) clientIP(r *http.Request) string {
	raw := ""
	if v := r.Header.Get("X-Vercel-Forwarded-For"); v != "" {
		raw = strings.TrimSpace(strings.Split(v, ",")[0])
	} else if v := r.Header.Get("X-Forwarded-For"); v != "" {
		raw = strings.TrimSpace(strings.Split(v, ",")[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		raw = host
	} else {
		raw = r.RemoteAddr
	}
	raw = strings.TrimPrefix(raw, "::ffff:")
	if net.ParseIP(raw) == nil {
		return "unknown"
	}
	return raw
}

var errTemporary = errors.New("temporary server error, please try again later")

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
