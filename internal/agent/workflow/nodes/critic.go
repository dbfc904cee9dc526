package nodes

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/parsers"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/prompts"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/tools"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const (
	toolWrapUpNotice   = "You have reached the tool call limit. Do not call any more tools. Give your final verdict now as JSON with keys: verdict, feedback, evidence, sources."
	searchUnavailable  = "Note: fact verification via web search was unavailable."
	toolFailurePayload = `{"results":[],"total":0,"error":"tool execution failed"}`
)

// EvalContext is the evaluation context handed to the Critic.
type EvalContext struct {
	Iteration     int
	MaxAttempts   int
	MemoryContext string
}

// Critic judges an answer, optionally verifying claims through web search tool calls.
type Critic struct {
	llm       ToolGenerator
	cfg       model.CriticConfig
	toolInfos []*schema.ToolInfo
	toolsNode *compose.ToolsNode
	metrics   *metrics.Metrics
}

// NewCritic wires the Critic. When search is nil no tools are offered.
func NewCritic(ctx context.Context, llm ToolGenerator, search model.SearchProvider, cfg model.CriticConfig, maxResults int, m *metrics.Metrics) (*Critic, error) {
	c := &Critic{llm: llm, cfg: cfg, metrics: m}
	if search == nil {
		return c, nil
	}

	criticTools := []tool.BaseTool{tools.NewWebSearchTool(search, maxResults)}
	infos, err := tools.GetToolInfos(ctx, criticTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return nil, fmt.Errorf("failed to get tool infos: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               criticTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return tools.UnknownToolResult(name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return tools.SanitizeArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	c.toolInfos = infos
	c.toolsNode = toolsNode
	return c, nil
}

// SearchEnabled reports whether the Critic can verify claims with web search.
func (c *Critic) SearchEnabled() bool {
	return c.toolsNode != nil
}

// Evaluate returns the Critic's verdict on answer. The error is non-nil only when
// no model provider could be invoked.
func (c *Critic) Evaluate(ctx context.Context, question, answer string, ec EvalContext) (model.VerdictRecord, error) {
	searchTool := ""
	if c.SearchEnabled() {
		searchTool = tools.ToolWebSearch
	}
	msgs, err := prompts.RenderCritic(ctx, prompts.CriticInput{
		Question:      question,
		Answer:        answer,
		Iteration:     ec.Iteration,
		MaxAttempts:   ec.MaxAttempts,
		MemoryContext: ec.MemoryContext,
		SearchTool:    searchTool,
	})
	if err != nil {
		return model.VerdictRecord{}, fmt.Errorf("critic prompt: %w", err)
	}

	opts := []einomodel.Option{
		einomodel.WithMaxTokens(c.cfg.MaxTokens),
		einomodel.WithTemperature(c.cfg.Temperature),
	}
	state := &toolCallState{}
	searchFailed := false

	var output string
	for {
		var bound []*schema.ToolInfo
		if c.SearchEnabled() && !state.ToolCallLimitReached {
			bound = c.toolInfos
		}

		out, err := c.llm.GenerateWithTools(ctx, msgs, bound, opts...)
		if err != nil {
			return model.VerdictRecord{}, err
		}
		if len(out.ToolCalls) == 0 || bound == nil {
			output = out.Content
			break
		}

		msgs = append(msgs, out)
		state.ToolCallCount++
		failed := c.runTools(ctx, out, &msgs)
		searchFailed = searchFailed || failed

		if checkAndMarkToolLimit(state, c.cfg.MaxToolCalls) {
			logx.Debug().Str("node", "critic").Int("tool_calls", state.ToolCallCount).Msg("tool call limit reached")
			msgs = append(msgs, schema.UserMessage(toolWrapUpNotice))
		}
	}

	verdict, stage := parsers.ParseVerdict(output)
	if searchFailed {
		verdict.Feedback = strings.TrimSpace(verdict.Feedback + "\n\n" + searchUnavailable)
	}
	logx.Debug().
		Str("node", "critic").
		Int("iteration", ec.Iteration).
		Str("verdict", verdict.Verdict).
		Str("parse_stage", string(stage)).
		Int("tool_calls", state.ToolCallCount).
		Msg("answer evaluated")
	return verdict, nil
}

// runTools executes the tool calls in out and appends their results to msgs.
// It reports whether any web search failed.
func (c *Critic) runTools(ctx context.Context, out *schema.Message, msgs *[]*schema.Message) bool {
	results, err := c.toolsNode.Invoke(ctx, out)
	if err != nil {
		logx.Warn().Err(err).Str("node", "critic").Msg("tool execution failed")
		c.metrics.Search("critic", err)
		for _, tc := range out.ToolCalls {
			*msgs = append(*msgs, schema.ToolMessage(toolFailurePayload, tc.ID))
		}
		return true
	}

	failed := false
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.ToolName == tools.ToolWebSearch {
			var searchErr error
			if tools.SearchFailed(r.Content) {
				failed = true
				searchErr = fmt.Errorf("web search failed")
			}
			c.metrics.Search("critic", searchErr)
		}
		*msgs = append(*msgs, r)
	}
	return failed
}

// ErrorVerdict maps a Critic invocation failure to the terminal "error" verdict.
func ErrorVerdict(err error) model.VerdictRecord {
	return model.VerdictRecord{
		Verdict:  model.VerdictError,
		Feedback: fmt.Sprintf("Error during evaluation: %v", err),
		Evidence: []string{},
		Sources:  []string{},
	}
}
