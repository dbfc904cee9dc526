package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const maxLoggedContent = 300

// newModelHandler logs the context sent to a chat model and its reply, and
// adds the call's usage cost to the CostTracker carried by ctx.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einomodel.CallbackInput) context.Context {
			ev := logx.Debug().Str("component", "model").Str("name", info.Name).Str("type", info.Type)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).
					Int("tools", len(input.Tools)).
					Str("user", clip(lastUserContent(input.Messages)))
			}
			ev.Msg("model call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einomodel.CallbackOutput) context.Context {
			if output == nil || output.Message == nil {
				logx.Debug().Str("component", "model").Str("name", info.Name).Msg("model call end: empty output")
				return ctx
			}
			msg := output.Message
			ev := logx.Debug().Str("component", "model").Str("name", info.Name).
				Str("assistant", clip(strings.TrimSpace(msg.Content))).
				Int("tool_calls", len(msg.ToolCalls))
			if cost, ok := model.CostOf(info.Name, msg); ok {
				ev = ev.Int("prompt_tokens", cost.PromptTokens).
					Int("completion_tokens", cost.CompletionTokens).
					Float64("cost_usd", cost.TotalCost)
				if t := costTrackerFrom(ctx); t != nil {
					t.Add(cost)
				}
			}
			ev.Msg("model call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("component", "model").Str("name", info.Name).Msg("model call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func clip(s string) string {
	return model.Truncate(s, maxLoggedContent)
}
