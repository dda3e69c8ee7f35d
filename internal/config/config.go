package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	DatabaseURL string

	// LLMProvider selects the generation backend: auto|anthropic|openai|mock.
	LLMProvider      string
	AnthropicAPIKey  string
	AnthropicModel   string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIEmbedModel string

	// EmbeddingDim is fixed per deployment; every stored embedding is
	// validated against it.
	EmbeddingDim int

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RecentTurnLimit    int
	ExtractionInterval int
	RecallK            int
	ContextCharBudget  int
	TurnTimeout        time.Duration

	AuthHMACSecret   string
	AuthStaticTokens string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "sentient"),
		AllowAnyOrigin:   false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		LLMProvider:      envOrDefault("LLM_PROVIDER", "auto"),
		AnthropicAPIKey:  stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:   envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:    envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIChatModel:  envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel: envOrDefault("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		// Default matches the mock embedder; OpenAI deployments set 1536.
		EmbeddingDim:       384,
		RateLimitRequests:  100,
		RateLimitWindow:    time.Hour,
		RecentTurnLimit:    12,
		ExtractionInterval: 6,
		RecallK:            5,
		ContextCharBudget:  2400,
		TurnTimeout:        30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		AuthHMACSecret:     stringsTrimSpace("AUTH_HMAC_SECRET"),
		AuthStaticTokens:   stringsTrimSpace("AUTH_STATIC_TOKENS"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TurnTimeout, err = durationFromEnv("CHAT_TURN_TIMEOUT", cfg.TurnTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitWindow, err = durationFromEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitRequests, err = intFromEnv("RATE_LIMIT_REQUESTS", cfg.RateLimitRequests)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("MEMORY_EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.RecentTurnLimit, err = intFromEnv("MEMORY_RECENT_TURNS", cfg.RecentTurnLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractionInterval, err = intFromEnv("MEMORY_EXTRACTION_INTERVAL", cfg.ExtractionInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.RecallK, err = intFromEnv("MEMORY_RECALL_K", cfg.RecallK)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextCharBudget, err = intFromEnv("CHAT_CONTEXT_CHAR_BUDGET", cfg.ContextCharBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "auto", "anthropic", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|anthropic|openai|mock)", cfg.LLMProvider)
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("MEMORY_EMBEDDING_DIM must be positive")
	}
	if cfg.RateLimitRequests <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
	}
	if cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.RecentTurnLimit <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RECENT_TURNS must be positive")
	}
	if cfg.ExtractionInterval <= 0 {
		return Config{}, fmt.Errorf("MEMORY_EXTRACTION_INTERVAL must be positive")
	}
	if cfg.RecallK <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RECALL_K must be positive")
	}
	if cfg.TurnTimeout < time.Second {
		return Config{}, fmt.Errorf("CHAT_TURN_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
