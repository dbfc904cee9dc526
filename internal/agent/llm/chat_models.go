package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"google.golang.org/genai"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	geminiThinkingBudget = 1024
)

// NewProviders builds chat models in cfg's priority order. Providers without an
// API key are skipped; unknown names are logged and ignored.
func NewProviders(ctx context.Context, cfg model.ProviderConfig) ([]Provider, error) {
	var out []Provider
	for _, name := range cfg.ProviderOrder() {
		switch name {
		case ProviderOpenAI:
			if cfg.OpenAI.APIKey == "" {
				logx.Debug().Str("provider", name).Msg("skipping provider without API key")
				continue
			}
			cm, err := newOpenAIChatModel(ctx, cfg)
			if err != nil {
				return nil, err
			}
			out = append(out, Provider{Name: name, Model: cfg.OpenAI.Model, Chat: cm})
		case ProviderGemini:
			if cfg.Gemini.APIKey == "" {
				logx.Debug().Str("provider", name).Msg("skipping provider without API key")
				continue
			}
			cm, err := newGeminiChatModel(ctx, cfg)
			if err != nil {
				return nil, err
			}
			out = append(out, Provider{Name: name, Model: cfg.Gemini.Model, Chat: cm})
		default:
			logx.Warn().Str("provider", name).Msg("unknown provider in LLM_PROVIDER_ORDER; ignoring")
		}
	}
	logx.Debug().Int("providers", len(out)).Msg("chat models created")
	return out, nil
}

func newOpenAIChatModel(ctx context.Context, cfg model.ProviderConfig) (*openai.ChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating OpenAI chat model")
		return nil, fmt.Errorf("error creating OpenAI chat model: %w", err)
	}
	return cm, nil
}

// newGeminiClient creates the genai client backing the Gemini chat model.
func newGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

func newGeminiChatModel(ctx context.Context, cfg model.ProviderConfig) (*gemini.ChatModel, error) {
	client, err := newGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL)
	if err != nil {
		return nil, err
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  cfg.Gemini.Model,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(geminiThinkingBudget)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}
	return cm, nil
}
