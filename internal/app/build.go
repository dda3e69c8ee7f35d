// Package app wires configuration into a runnable service.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/auth"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/chat"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/companions"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/config"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/httpapi"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/memory"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/observability"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/provider"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/ratelimit"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *chat.Orchestrator
	Metrics      *observability.Metrics
	LLMProvider  string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

type providerSet struct {
	name      string
	generator provider.Generator
	moderator provider.Moderator
	embedder  provider.Embedder
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	catalog, err := newCatalog(ctx, cfg)
	if err != nil {
		_ = memoryStore.Close()
		return nil, err
	}

	providers, err := resolveProviders(cfg)
	if err != nil {
		_ = memoryStore.Close()
		catalog.Close()
		return nil, err
	}
	log.Printf("llm provider: %s", providers.name)

	summarize := chat.LLMSummarize(providers.generator)
	if providers.name == "mock" {
		// The mock generator cannot distill facts; keep user turns verbatim.
		summarize = memory.HeuristicSummarize
	}
	extractor := memory.NewExtractor(memoryStore, providers.embedder.Embed, summarize, cfg.ExtractionInterval)

	limiter := ratelimit.NewLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)

	orchestrator := chat.NewOrchestrator(
		memoryStore,
		catalog,
		limiter,
		providers.generator,
		providers.moderator,
		providers.embedder,
		extractor,
		metrics,
		chat.Options{
			RecentTurnLimit:   cfg.RecentTurnLimit,
			RecallK:           cfg.RecallK,
			ContextCharBudget: cfg.ContextCharBudget,
			TurnTimeout:       cfg.TurnTimeout,
		},
	)

	verifier := auth.FromConfig(cfg.AuthHMACSecret, cfg.AuthStaticTokens)
	if _, ok := verifier.(auth.DevVerifier); ok {
		log.Printf("auth: no secret or static tokens configured, using permissive dev verifier")
	}

	api := httpapi.New(cfg, orchestrator, memoryStore, catalog, verifier, metrics)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		LLMProvider:  providers.name,
		Cleanup: func() error {
			catalog.Close()
			return memoryStore.Close()
		},
	}, nil
}

func newCatalog(ctx context.Context, cfg config.Config) (companions.Store, error) {
	if cfg.DatabaseURL == "" {
		return companions.NewLocalStore(), nil
	}
	store, err := companions.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("companion store init failed: %w", err)
	}
	return store, nil
}

// resolveProviders picks the LLM backend. Anthropic handles generation
// only, so an OpenAI-compatible endpoint (or the mock) still covers
// moderation and embeddings alongside it.
func resolveProviders(cfg config.Config) (providerSet, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if mode == "" {
		mode = "auto"
	}
	mock := provider.NewMock(cfg.EmbeddingDim)

	buildOpenAI := func() *provider.OpenAIClient {
		return provider.NewOpenAIClient(
			cfg.OpenAIAPIKey, cfg.OpenAIBaseURL,
			cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, cfg.EmbeddingDim,
		)
	}
	buildAnthropic := func() providerSet {
		set := providerSet{
			name:      "anthropic",
			generator: provider.NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel),
			moderator: mock,
			embedder:  mock,
		}
		if cfg.OpenAIAPIKey != "" {
			oai := buildOpenAI()
			set.moderator = oai
			set.embedder = oai
		}
		return set
	}

	switch mode {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return providerSet{}, fmt.Errorf("LLM_PROVIDER=anthropic but ANTHROPIC_API_KEY is not set")
		}
		return buildAnthropic(), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return providerSet{}, fmt.Errorf("LLM_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		oai := buildOpenAI()
		return providerSet{name: "openai", generator: oai, moderator: oai, embedder: oai}, nil
	case "mock":
		return providerSet{name: "mock", generator: mock, moderator: mock, embedder: mock}, nil
	case "auto":
		if cfg.AnthropicAPIKey != "" {
			return buildAnthropic(), nil
		}
		if cfg.OpenAIAPIKey != "" {
			oai := buildOpenAI()
			return providerSet{name: "openai", generator: oai, moderator: oai, embedder: oai}, nil
		}
		log.Printf("llm provider: mock (no API keys configured)")
		return providerSet{name: "mock", generator: mock, moderator: mock, embedder: mock}, nil
	default:
		return providerSet{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|anthropic|openai|mock)", cfg.LLMProvider)
	}
}
