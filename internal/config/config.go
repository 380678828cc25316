package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries everything the server and CLI need. Secrets and upstream
// credentials keep the env names the original Vercel deployment used, so
// the same dashboard settings keep working.
type Config struct {
	Addr string

	// Auth.
	JWTSecret        string
	LegacyAuthToken  string // deprecated shared token, JWT fallback only
	ImageTokenSecret string

	// Upstream credentials.
	ClaudeAPIKey       string
	OpenAIAPIKey       string
	GitHubToken        string
	GitHubOwner        string
	GitHubRepo         string
	UpstashURL         string
	UpstashToken       string
	InstagramToken     string
	InstagramAccountID string
	ThreadsToken       string
	ThreadsUserID      string
	BlueskyIdentifier  string
	BlueskyAppPassword string

	AllowedOrigins []string

	// Execution ceiling for a single request.
	Deadline time.Duration

	RateLimits RateLimits
}

// RateLimits are per-IP daily quotas, enforced through the remote counter
// store so they hold across instances.
type RateLimits struct {
	DiaryPerDay     int
	ImagePerDay     int
	InstagramPerDay int
	ThreadsPerDay   int
	BlueskyPerDay   int
}

// legacyKeys are the unprefixed env names from the original deployment.
var legacyKeys = []string{
	"JWT_SECRET", "AUTH_TOKEN", "IMAGE_TOKEN_SECRET",
	"CLAUDE_API_KEY", "OPENAI_API_KEY",
	"GITHUB_TOKEN", "GITHUB_OWNER", "GITHUB_REPO",
	"UPSTASH_REDIS_REST_URL", "UPSTASH_REDIS_REST_TOKEN",
	"INSTAGRAM_ACCESS_TOKEN", "INSTAGRAM_BUSINESS_ACCOUNT_ID",
	"THREADS_ACCESS_TOKEN", "THREADS_USER_ID",
	"BLUESKY_IDENTIFIER", "BLUESKY_APP_PASSWORD",
	"ALLOWED_ORIGINS", "PORT",
}

// Load reads configuration from the environment. Missing upstream
// credentials are not an error here; each handler checks what it needs
// and fails closed at request time.
func Load() Config {
	v := viper.New()
	v.SetEnvPrefix("VOICEDIARY")
	v.AutomaticEnv()
	for _, key := range legacyKeys {
		_ = v.BindEnv(key, key)
	}

	v.SetDefault("ADDR", "")
	v.SetDefault("DEADLINE", 25*time.Second)
	v.SetDefault("RL_DIARY_PER_DAY", 30)
	v.SetDefault("RL_IMAGE_PER_DAY", 10)
	v.SetDefault("RL_INSTAGRAM_PER_DAY", 5)
	v.SetDefault("RL_THREADS_PER_DAY", 3)
	v.SetDefault("RL_BLUESKY_PER_DAY", 3)

	addr := v.GetString("ADDR")
	if addr == "" {
		if port := v.GetString("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}

	return Config{
		Addr:               addr,
		JWTSecret:          v.GetString("JWT_SECRET"),
		LegacyAuthToken:    v.GetString("AUTH_TOKEN"),
		ImageTokenSecret:   v.GetString("IMAGE_TOKEN_SECRET"),
		ClaudeAPIKey:       v.GetString("CLAUDE_API_KEY"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		GitHubToken:        v.GetString("GITHUB_TOKEN"),
		GitHubOwner:        v.GetString("GITHUB_OWNER"),
		GitHubRepo:         v.GetString("GITHUB_REPO"),
		UpstashURL:         strings.TrimSuffix(v.GetString("UPSTASH_REDIS_REST_URL"), "/"),
		UpstashToken:       v.GetString("UPSTASH_REDIS_REST_TOKEN"),
		InstagramToken:     v.GetString("INSTAGRAM_ACCESS_TOKEN"),
		InstagramAccountID: v.GetString("INSTAGRAM_BUSINESS_ACCOUNT_ID"),
		ThreadsToken:       v.GetString("THREADS_ACCESS_TOKEN"),
		ThreadsUserID:      v.GetString("THREADS_USER_ID"),
		BlueskyIdentifier:  v.GetString("BLUESKY_IDENTIFIER"),
		BlueskyAppPassword: v.GetString("BLUESKY_APP_PASSWORD"),
		AllowedOrigins:     splitOrigins(v.GetString("ALLOWED_ORIGINS")),
		Deadline:           v.GetDuration("DEADLINE"),
		RateLimits: RateLimits{
			DiaryPerDay:     v.GetInt("RL_DIARY_PER_DAY"),
			ImagePerDay:     v.GetInt("RL_IMAGE_PER_DAY"),
			InstagramPerDay: v.GetInt("RL_INSTAGRAM_PER_DAY"),
			ThreadsPerDay:   v.GetInt("RL_THREADS_PER_DAY"),
			BlueskyPerDay:   v.GetInt("RL_BLUESKY_PER_DAY"),
		},
	}
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimSuffix(strings.TrimSpace(part), "/")
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
