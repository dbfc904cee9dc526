package workflow

import (
	"context"
	"fmt"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/llm"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/memory"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/nodes"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

// Config holds everything needed to assemble a Runner end-to-end.
type Config struct {
	LLM    *llm.FallbackClient
	Search model.SearchProvider
	Memory *memory.Provider
	Audit  model.RunAuditRepository

	Responder        model.ResponderConfig
	Critic           model.CriticConfig
	Loop             model.LoopConfig
	SearchMaxResults int

	Metrics *metrics.Metrics
}

// BuildRunner wires the Responder and Critic nodes onto the fallback client.
func BuildRunner(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("model client is nil")
	}

	responder := nodes.NewResponder(cfg.LLM, cfg.Search, cfg.Responder, cfg.SearchMaxResults, cfg.Metrics)
	critic, err := nodes.NewCritic(ctx, cfg.LLM, cfg.Search, cfg.Critic, cfg.SearchMaxResults, cfg.Metrics)
	if err != nil {
		return nil, err
	}

	d := Deps{
		Responder: responder,
		Critic:    critic,
		Audit:     cfg.Audit,
		Metrics:   cfg.Metrics,
	}
	if cfg.Memory != nil {
		d.Memory = cfg.Memory
	}

	r, err := NewRunner(d, cfg.Loop)
	if err != nil {
		return nil, err
	}
	logx.Debug().
		Strs("providers", cfg.LLM.Providers()).
		Bool("search", cfg.Search != nil).
		Bool("critic_tools", critic.SearchEnabled()).
		Int("max_attempts", r.cfg.MaxAttempts).
		Msg("refine loop runner built")
	return r, nil
}
