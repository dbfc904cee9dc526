package main

import (
	"context"
	"fmt"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/embedding"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/llm"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/memory"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/repo"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/observers"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
	"github.com/Chative-core-poc-v1/refineloop/internal/search"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

// app holds the process-lifetime collaborators shared by every command.
type app struct {
	runner   *workflow.Runner
	memory   *memory.Provider
	audit    model.RunAuditRepository
	registry *prometheus.Registry
	rdb      *redis.Client
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// buildApp wires Redis, memory, search, providers and the runner from cfg.
// Redis and search are optional; without them the loop runs with no memory or no verification.
func buildApp(ctx context.Context, cfg AppConfig) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	var store model.MemoryStore
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logx.Warn().Err(err).Msg("redis unavailable; long-term memory and run audit disabled")
	} else {
		a.rdb = rdb
		embedder, err := newEmbedder(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		store = repo.NewRedisMemoryStore(rdb, embedder)
		a.audit = repo.NewRedisRunAuditRepository(rdb, cfg.Memory.AuditTTL)
	}
	a.memory = memory.NewProvider(store, cfg.Memory, m)

	providers, err := llm.NewProviders(ctx, cfg.Providers)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build model providers: %w", err)
	}
	client := llm.NewFallbackClient(providers, m, observers.NewAllCallbacks())
	if len(client.Providers()) == 0 {
		logx.Warn().Msg("no model provider configured; every run will return the no-response notice")
	}

	var searcher model.SearchProvider
	if t := search.NewTavily(cfg.Search.TavilyAPIKey, cfg.Search.Depth); t != nil {
		searcher = t
	}

	a.runner, err = workflow.BuildRunner(ctx, workflow.Config{
		LLM:              client,
		Search:           searcher,
		Memory:           a.memory,
		Audit:            a.audit,
		Responder:        cfg.Responder,
		Critic:           cfg.Critic,
		Loop:             cfg.Loop,
		SearchMaxResults: cfg.Search.MaxResults,
		Metrics:          m,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build runner: %w", err)
	}
	return a, nil
}

func newEmbedder(ctx context.Context, cfg AppConfig) (einoembedding.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Memory.EmbeddingProvider)) {
	case "hashing":
		return embedding.NewHashing(cfg.Memory.HashingDims), nil
	case "gemini", "":
		if cfg.Providers.Gemini.APIKey == "" {
			logx.Warn().Msg("GEMINI_API_KEY not set; using local hashing embedder")
			return embedding.NewHashing(cfg.Memory.HashingDims), nil
		}
		g, err := embedding.NewGenAI(ctx, embedding.GenAIConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			BaseURL: cfg.Providers.Gemini.BaseURL,
			Model:   cfg.Memory.EmbeddingModel,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", cfg.Memory.EmbeddingProvider)
	}
}
