package model

import (
	"strings"
	"time"
)

// ================ Config ================
type ProviderConfig struct {
	OpenAI struct {
		APIKey  string `envconfig:"OPENAI_API_KEY"`
		BaseURL string `envconfig:"OPENAI_BASE_URL"`
		Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	}
	Gemini struct {
		APIKey  string `envconfig:"GEMINI_API_KEY"`
		BaseURL string `envconfig:"GEMINI_BASE_URL"`
		Model   string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	}
	// Order lists provider names by priority, comma separated.
	Order string `envconfig:"LLM_PROVIDER_ORDER" default:"openai,gemini"`
}

// ProviderOrder returns the normalised provider priority list.
func (c ProviderConfig) ProviderOrder() []string {
	var out []string
	for _, p := range strings.Split(c.Order, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type ResponderConfig struct {
	MaxTokens   int     `envconfig:"RESPONDER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONDER_TEMPERATURE" default:"0.7"`
}

type CriticConfig struct {
	MaxTokens    int     `envconfig:"CRITIC_MAX_TOKENS" default:"2000"`
	Temperature  float32 `envconfig:"CRITIC_TEMPERATURE" default:"0.2"`
	MaxToolCalls int     `envconfig:"CRITIC_MAX_TOOL_CALLS" default:"3"`
}

type LoopConfig struct {
	MaxAttempts int           `envconfig:"LOOP_MAX_ATTEMPTS" default:"3"`
	Timeout     time.Duration `envconfig:"LOOP_TIMEOUT" default:"2m"`
}

type MemoryConfig struct {
	TopK              int           `envconfig:"MEMORY_TOP_K" default:"3"`
	ShortTurns        int           `envconfig:"MEMORY_SHORT_TURNS" default:"5"`
	EmbeddingProvider string        `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	HashingDims       int           `envconfig:"EMBEDDING_HASHING_DIMS" default:"256"`
	AuditTTL          time.Duration `envconfig:"AUDIT_TTL" default:"24h"`
}

type SearchConfig struct {
	TavilyAPIKey string `envconfig:"TAVILY_API_KEY"`
	Depth        string `envconfig:"TAVILY_SEARCH_DEPTH" default:"basic"`
	MaxResults   int    `envconfig:"SEARCH_MAX_RESULTS" default:"5"`
}
