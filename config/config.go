package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Session   SessionConfig
	Engine    EngineConfig
	Agent     AgentConfig
	LLM       LLMConfig
	Retriever RetrieverConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// Stealth enables anti-bot-detection evasions on new pages unless a
	// session opts out.
	Stealth bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the default proxy URL for all sessions.
	Proxy string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true

	// NavigationTimeout is the max time for a single page load.
	NavigationTimeout time.Duration // default: 15s
}

// SessionConfig controls the browser session pool.
type SessionConfig struct {
	// MaxSessions is the maximum number of concurrent browser sessions.
	MaxSessions int // default: 10

	// TTL is the idle lifetime of a session before the janitor closes it.
	TTL time.Duration // default: 30m
}

// EngineConfig controls the navigation engine retry loop.
type EngineConfig struct {
	// Attempts is the number of generate-and-execute attempts per instruction.
	Attempts int // default: 5

	// ActionDelay is the pause after each successful action execution.
	ActionDelay time.Duration // default: 1.5s

	// RaiseOnError aborts the retry loop on the first execution failure.
	RaiseOnError bool // default: false

	// StepTimeout is the deadline for a single action-program step.
	StepTimeout time.Duration // default: 10s
}

// AgentConfig controls the multi-step objective loop.
type AgentConfig struct {
	// MaxSteps caps the number of planner iterations per objective.
	MaxSteps int // default: 10

	// MemoryWindow is how many recent steps the planner sees.
	MemoryWindow int // default: 10

	// StuckThreshold is the number of consecutive unchanged-page steps
	// after which the run aborts.
	StuckThreshold int // default: 3
}

// LLMConfig controls the language model clients.
type LLMConfig struct {
	// Provider selects the completion backend. "openai" or "gemini".
	Provider string // default: "openai"

	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string // default: "https://api.openai.com/v1"

	// Model is the completion model.
	Model string // default: "gpt-4o"

	// EmbedModel is the embedding model.
	EmbedModel string // default: "text-embedding-3-large"

	// Temperature is the sampling temperature for completions.
	Temperature float64 // default: 0

	// MaxTokens caps completion length. 0 means provider default.
	MaxTokens int

	// MaxRPS paces outbound completion calls. 0 disables pacing.
	MaxRPS float64

	// Timeout is the per-call deadline.
	Timeout time.Duration // default: 60s
}

// RetrieverConfig controls context retrieval over page snapshots.
type RetrieverConfig struct {
	// Kind selects the retriever. "embedding" or "sparse".
	Kind string // default: "embedding"

	// TopK is the number of fragments returned per query.
	TopK int // default: 5

	// ChunkTokens is the target fragment size in estimated tokens.
	ChunkTokens int // default: 750
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the embedding vector cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached vectors.
	MaxEntries int // default: 4096
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// WebhookConfig controls objective completion callbacks.
type WebhookConfig struct {
	// Secret signs webhook payloads. Empty disables signing.
	Secret string

	// Timeout is the per-delivery HTTP deadline.
	Timeout time.Duration // default: 10s
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("WEBPILOT_HOST", "0.0.0.0"),
			Port: envIntOr("WEBPILOT_PORT", 8080),
			Mode: envOr("WEBPILOT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("WEBPILOT_HEADLESS", true),
			Stealth:           envBoolOr("WEBPILOT_STEALTH", true),
			NoSandbox:         envBoolOr("WEBPILOT_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("WEBPILOT_BROWSER_BIN"),
			Proxy:             os.Getenv("WEBPILOT_PROXY"),
			BlockAds:          envBoolOr("WEBPILOT_BLOCK_ADS", true),
			NavigationTimeout: envDurationOr("WEBPILOT_NAV_TIMEOUT", 15*time.Second),
		},
		Session: SessionConfig{
			MaxSessions: envIntOr("WEBPILOT_MAX_SESSIONS", 10),
			TTL:         envDurationOr("WEBPILOT_SESSION_TTL", 30*time.Minute),
		},
		Engine: EngineConfig{
			Attempts:     envIntOr("WEBPILOT_NAV_ATTEMPTS", 5),
			ActionDelay:  envDurationOr("WEBPILOT_ACTION_DELAY", 1500*time.Millisecond),
			RaiseOnError: envBoolOr("WEBPILOT_RAISE_ON_ERROR", false),
			StepTimeout:  envDurationOr("WEBPILOT_STEP_TIMEOUT", 10*time.Second),
		},
		Agent: AgentConfig{
			MaxSteps:       envIntOr("WEBPILOT_MAX_STEPS", 10),
			MemoryWindow:   envIntOr("WEBPILOT_MEMORY_WINDOW", 10),
			StuckThreshold: envIntOr("WEBPILOT_STUCK_THRESHOLD", 3),
		},
		LLM: LLMConfig{
			Provider:    envOr("WEBPILOT_LLM_PROVIDER", "openai"),
			APIKey:      envOr("WEBPILOT_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:     envOr("WEBPILOT_LLM_BASE_URL", "https://api.openai.com/v1"),
			Model:       envOr("WEBPILOT_LLM_MODEL", "gpt-4o"),
			EmbedModel:  envOr("WEBPILOT_EMBED_MODEL", "text-embedding-3-large"),
			Temperature: envFloatOr("WEBPILOT_LLM_TEMPERATURE", 0),
			MaxTokens:   envIntOr("WEBPILOT_LLM_MAX_TOKENS", 0),
			MaxRPS:      envFloatOr("WEBPILOT_LLM_MAX_RPS", 0),
			Timeout:     envDurationOr("WEBPILOT_LLM_TIMEOUT", 60*time.Second),
		},
		Retriever: RetrieverConfig{
			Kind:        envOr("WEBPILOT_RETRIEVER", "embedding"),
			TopK:        envIntOr("WEBPILOT_RETRIEVER_TOP_K", 5),
			ChunkTokens: envIntOr("WEBPILOT_CHUNK_TOKENS", 750),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("WEBPILOT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("WEBPILOT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("WEBPILOT_RATE_RPS", 5.0),
			Burst:             envIntOr("WEBPILOT_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("WEBPILOT_CACHE_MAX_ENTRIES", 4096),
		},
		Log: LogConfig{
			Level:  envOr("WEBPILOT_LOG_LEVEL", "info"),
			Format: envOr("WEBPILOT_LOG_FORMAT", "json"),
		},
		Webhook: WebhookConfig{
			Secret:  os.Getenv("WEBPILOT_WEBHOOK_SECRET"),
			Timeout: envDurationOr("WEBPILOT_WEBHOOK_TIMEOUT", 10*time.Second),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
