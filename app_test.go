package main

import (
	"context"
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/embedding"
)

func TestAppConfigFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_PROVIDER_ORDER", "gemini, openai")
	t.Setenv("LOOP_MAX_ATTEMPTS", "4")
	t.Setenv("LOOP_TIMEOUT", "30s")

	var cfg AppConfig
	require.NoError(t, envconfig.Process("", &cfg))

	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Providers.OpenAI.Model)
	assert.Equal(t, []string{"gemini", "openai"}, cfg.Providers.ProviderOrder())
	assert.Equal(t, 4, cfg.Loop.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Loop.Timeout)
	assert.Equal(t, 3, cfg.Critic.MaxToolCalls)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestNewEmbedder(t *testing.T) {
	cfg := AppConfig{}
	cfg.Memory.EmbeddingProvider = "hashing"
	cfg.Memory.HashingDims = 64

	e, err := newEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &embedding.Hashing{}, e)

	cfg.Memory.EmbeddingProvider = "gemini"
	e, err = newEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &embedding.Hashing{}, e, "falls back without a Gemini key")

	cfg.Memory.EmbeddingProvider = "word2vec"
	_, err = newEmbedder(context.Background(), cfg)
	assert.Error(t, err)
}
