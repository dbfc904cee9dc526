package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-embedding-001"

// GenAI embeds texts with the Gemini embedding API.
type GenAI struct {
	client   *genai.Client
	model    string
	taskType string
}

// GenAIConfig configures the Gemini embedder.
type GenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// TaskType is a Gemini task type such as SEMANTIC_SIMILARITY or RETRIEVAL_QUERY.
	TaskType string
}

// NewGenAI creates a Gemini-backed embedder.
func NewGenAI(ctx context.Context, cfg GenAIConfig) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedding: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.TaskType == "" {
		cfg.TaskType = "SEMANTIC_SIMILARITY"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding client: %w", err)
	}
	return &GenAI{client: client, model: cfg.Model, taskType: cfg.TaskType}, nil
}

// EmbedStrings implements embedding.Embedder.
func (g *GenAI) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType: g.taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float64, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

var _ embedding.Embedder = (*GenAI)(nil)
