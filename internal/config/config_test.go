package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != time.Hour {
		t.Fatalf("rate limit defaults = %d/%v, want 100/1h", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.ExtractionInterval != 6 {
		t.Fatalf("ExtractionInterval = %d, want 6", cfg.ExtractionInterval)
	}
	if cfg.EmbeddingDim != 384 {
		t.Fatalf("EmbeddingDim = %d, want 384", cfg.EmbeddingDim)
	}
}

func TestLoadRejectsInvalidProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "llamacpp")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject unknown LLM_PROVIDER")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CHAT_TURN_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject unparsable CHAT_TURN_TIMEOUT")
	}
}

func TestLoadRejectsSubSecondTimeout(t *testing.T) {
	t.Setenv("CHAT_TURN_TIMEOUT", "100ms")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject sub-second turn timeout")
	}
}
