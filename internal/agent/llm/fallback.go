package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

// Provider is one chat model in the fallback chain.
type Provider struct {
	// Name identifies the backend ("openai", "gemini") in logs and metrics.
	Name string
	// Model is the model identifier used for cost lookup.
	Model string
	Chat  einomodel.BaseChatModel
}

var errNilMessage = errors.New("provider returned no message")

// FallbackClient tries providers in priority order until one succeeds.
// It holds no per-request state and is safe for concurrent use.
type FallbackClient struct {
	providers []Provider
	metrics   *metrics.Metrics
	handlers  []callbacks.Handler
}

func NewFallbackClient(providers []Provider, m *metrics.Metrics, handlers ...callbacks.Handler) *FallbackClient {
	ps := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Chat != nil {
			ps = append(ps, p)
		}
	}
	return &FallbackClient{providers: ps, metrics: m, handlers: handlers}
}

// Providers returns the configured provider names in priority order.
func (c *FallbackClient) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name)
	}
	return names
}

// Complete returns the first successful completion text. ok is false when no
// provider is configured or all of them failed.
func (c *FallbackClient) Complete(ctx context.Context, msgs []*schema.Message, maxTokens int, temperature float32) (string, bool) {
	out, err := c.Generate(ctx, msgs, einomodel.WithMaxTokens(maxTokens), einomodel.WithTemperature(temperature))
	if err != nil {
		return "", false
	}
	return out.Content, true
}

// Generate runs the fallback chain without tools.
func (c *FallbackClient) Generate(ctx context.Context, msgs []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	return c.GenerateWithTools(ctx, msgs, nil, opts...)
}

// GenerateWithTools runs the fallback chain with tools bound to each provider.
func (c *FallbackClient) GenerateWithTools(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo, opts ...einomodel.Option) (*schema.Message, error) {
	if len(c.providers) == 0 {
		logx.Warn().Str("component", "llm").Msg("no model provider configured")
		return nil, errx.WrapProvider(errx.ErrNoProvider)
	}

	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		out, err := c.call(ctx, p, msgs, tools, opts)
		c.metrics.ProviderCall(p.Name, time.Since(start), err)
		if err == nil {
			return out, nil
		}
		logx.Warn().Err(err).
			Str("component", "llm").
			Str("provider", p.Name).
			Str("model", p.Model).
			Msg("provider failed; trying next")
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}

	logx.Error().Str("component", "llm").Int("providers", len(c.providers)).Msg("all model providers failed")
	return nil, errx.WrapProvider(fmt.Errorf("%w: %w", errx.ErrAllProvidersFailed, errors.Join(errs...)))
}

func (c *FallbackClient) call(ctx context.Context, p Provider, msgs []*schema.Message, tools []*schema.ToolInfo, opts []einomodel.Option) (*schema.Message, error) {
	chat := p.Chat
	if len(tools) > 0 {
		if tc, ok := chat.(einomodel.ToolCallingChatModel); ok {
			bound, err := tc.WithTools(tools)
			if err != nil {
				return nil, fmt.Errorf("bind tools: %w", err)
			}
			chat = bound
		} else {
			opts = append(opts, einomodel.WithTools(tools))
		}
	}

	if len(c.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      p.Model,
			Type:      p.Name,
			Component: components.ComponentOfChatModel,
		}, c.handlers...)
	}

	// models that do not report their own callbacks get them here
	manual := len(c.handlers) > 0 && !components.IsCallbacksEnabled(chat)
	if manual {
		ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{Messages: msgs, Tools: tools})
	}

	out, err := chat.Generate(ctx, msgs, opts...)
	if err == nil && out == nil {
		err = errNilMessage
	}

	if manual {
		if err != nil {
			callbacks.OnError(ctx, err)
		} else {
			callbacks.OnEnd(ctx, &einomodel.CallbackOutput{Message: out})
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
