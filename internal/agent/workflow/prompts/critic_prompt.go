package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/critic_system.txt
var criticSystemPrompt string

//go:embed template/critic_evaluation.txt
var criticEvaluationPrompt string

// CriticInput is everything the Critic prompt depends on.
type CriticInput struct {
	Question      string
	Answer        string
	Iteration     int
	MaxAttempts   int
	MemoryContext string
	// SearchTool names the verification tool; empty when search is unavailable.
	SearchTool string
}

// RenderCritic renders the Critic's system rubric and evaluation request.
func RenderCritic(ctx context.Context, in CriticInput) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(criticSystemPrompt),
		schema.UserMessage(criticEvaluationPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Question":      in.Question,
		"Answer":        in.Answer,
		"Iteration":     in.Iteration,
		"MaxAttempts":   in.MaxAttempts,
		"MemoryContext": in.MemoryContext,
		"SearchEnabled": in.SearchTool != "",
		"SearchTool":    in.SearchTool,
	})
	if err != nil {
		return nil, fmt.Errorf("critic prompt render: %w", err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("critic prompt render: expected 2 messages, got %d", len(msgs))
	}
	return msgs, nil
}
