package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/llm/llmtest"
	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
)

var question = []*schema.Message{schema.UserMessage("What is 2+3?")}

func TestCompleteUsesFirstProvider(t *testing.T) {
	primary := llmtest.New(llmtest.Text("5"))
	secondary := llmtest.New(llmtest.Text("five"))
	c := NewFallbackClient([]Provider{
		{Name: "openai", Model: "gpt-4o-mini", Chat: primary},
		{Name: "gemini", Model: "gemini-2.5-flash", Chat: secondary},
	}, nil)

	out, ok := c.Complete(context.Background(), question, 2000, 0.7)
	require.True(t, ok)
	assert.Equal(t, "5", out)
	assert.Equal(t, 1, primary.CallCount())
	assert.Zero(t, secondary.CallCount())

	opts := primary.Options(0)
	require.NotNil(t, opts.MaxTokens)
	require.NotNil(t, opts.Temperature)
	assert.Equal(t, 2000, *opts.MaxTokens)
	assert.InDelta(t, 0.7, *opts.Temperature, 1e-6)
}

func TestCompleteFallsBackInOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	first := llmtest.New(llmtest.Fail(errors.New("rate limited")))
	second := llmtest.New(llmtest.Nil())
	third := llmtest.New(llmtest.Text("answer"))
	c := NewFallbackClient([]Provider{
		{Name: "openai", Chat: first},
		{Name: "gemini", Chat: second},
		{Name: "local", Chat: third},
	}, m)

	out, ok := c.Complete(context.Background(), question, 100, 0.2)
	require.True(t, ok)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 1, first.CallCount())
	assert.Equal(t, 1, second.CallCount())
	assert.Equal(t, 1, third.CallCount())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("openai", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("gemini", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("local", "ok")))
}

func TestCompleteAllFail(t *testing.T) {
	c := NewFallbackClient([]Provider{
		{Name: "openai", Chat: llmtest.New(llmtest.Fail(errors.New("down")))},
		{Name: "gemini", Chat: llmtest.New(llmtest.Fail(errors.New("quota")))},
	}, nil)

	out, ok := c.Complete(context.Background(), question, 100, 0.2)
	assert.False(t, ok)
	assert.Empty(t, out)

	_, err := c.Generate(context.Background(), question)
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrAllProvidersFailed)
	assert.Contains(t, err.Error(), "quota")
	assert.Equal(t, 502, errx.StatusOf(err))
}

func TestNoProviderConfigured(t *testing.T) {
	c := NewFallbackClient([]Provider{{Name: "openai"}}, nil)
	assert.Empty(t, c.Providers())

	out, ok := c.Complete(context.Background(), question, 100, 0.2)
	assert.False(t, ok)
	assert.Empty(t, out)

	_, err := c.Generate(context.Background(), question)
	assert.ErrorIs(t, err, errx.ErrNoProvider)
}

func TestEmptyContentIsNotAFailure(t *testing.T) {
	primary := llmtest.New(llmtest.Text(""))
	secondary := llmtest.New(llmtest.Text("unused"))
	c := NewFallbackClient([]Provider{{Name: "a", Chat: primary}, {Name: "b", Chat: secondary}}, nil)

	out, ok := c.Complete(context.Background(), question, 100, 0.2)
	assert.True(t, ok)
	assert.Empty(t, out)
	assert.Zero(t, secondary.CallCount())
}

func TestGenerateWithToolsBindsTools(t *testing.T) {
	chat := llmtest.New(llmtest.ToolCall("call_1", "web_search", `{"query":"2+3"}`))
	c := NewFallbackClient([]Provider{{Name: "openai", Chat: chat}}, nil)
	tools := []*schema.ToolInfo{{Name: "web_search", Desc: "search"}}

	out, err := c.GenerateWithTools(context.Background(), question, tools)
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "web_search", out.ToolCalls[0].Function.Name)
	assert.Equal(t, tools, chat.BoundTools())
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	chat := llmtest.New(llmtest.Text("x"))
	c := NewFallbackClient([]Provider{{Name: "openai", Chat: chat}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, question)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, chat.CallCount())
}
