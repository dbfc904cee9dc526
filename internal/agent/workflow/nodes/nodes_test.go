package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/llm"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/llm/llmtest"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
)

type fakeCompleter struct {
	text  string
	ok    bool
	calls [][]*schema.Message
}

func (f *fakeCompleter) Complete(_ context.Context, msgs []*schema.Message, _ int, _ float32) (string, bool) {
	f.calls = append(f.calls, msgs)
	return f.text, f.ok
}

type fakeSearch struct {
	results []model.SearchResult
	err     error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string, _ int) ([]model.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

var responderCfg = model.ResponderConfig{MaxTokens: 2000, Temperature: 0.7}

func newState(q string) *model.WorkflowState {
	return model.NewWorkflowState(model.RunInput{UserMessage: q}, "", 3)
}

func TestResponderFirstAttempt(t *testing.T) {
	fc := &fakeCompleter{text: "2+3=5", ok: true}
	r := NewResponder(fc, nil, responderCfg, 5, nil)
	state := newState("What is 2+3?")

	text, rec := r.Respond(context.Background(), state)
	assert.Equal(t, "2+3=5", text)
	assert.Equal(t, model.RevisionRecord{Iteration: 1, ResponseExcerpt: "2+3=5", HadPriorFeedback: false}, rec)
	assert.Equal(t, []string{"2+3=5"}, state.AllResponses)
	assert.Equal(t, "2+3=5", state.FinalResponse)
	require.Len(t, fc.calls, 1)
	assert.Equal(t, schema.System, fc.calls[0][0].Role)
	assert.Equal(t, "What is 2+3?", fc.calls[0][1].Content)
}

func TestResponderEmptyOutputBecomesNotice(t *testing.T) {
	for _, fc := range []*fakeCompleter{{text: "  \n", ok: true}, {ok: false}} {
		r := NewResponder(fc, nil, responderCfg, 5, nil)
		state := newState("hello")

		text, _ := r.Respond(context.Background(), state)
		assert.Equal(t, model.NoResponseNotice, text)
		assert.Equal(t, model.NoResponseNotice, state.FinalResponse)
	}
}

func TestResponderRevisionIncludesFeedback(t *testing.T) {
	fc := &fakeCompleter{text: "2+3=5", ok: true}
	r := NewResponder(fc, nil, responderCfg, 5, nil)
	state := newState("What is 2+3?")
	state.RecordResponse("2+3=6")
	state.RecordVerdict(model.VerdictRecord{Verdict: "needs_revision", Feedback: "Arithmetic error", Evidence: []string{}, Sources: []string{}})

	_, rec := r.Respond(context.Background(), state)
	assert.Equal(t, 2, rec.Iteration)
	assert.True(t, rec.HadPriorFeedback)
	assert.Contains(t, fc.calls[0][0].Content, "Critic's Feedback: Arithmetic error")
}

func TestResponderCancelledRevisionKeepsPreviousAnswer(t *testing.T) {
	fc := &fakeCompleter{ok: false}
	r := NewResponder(fc, nil, responderCfg, 5, nil)
	state := newState("What is 2+3?")
	state.RecordResponse("2+3=5")
	state.RecordVerdict(model.VerdictRecord{Verdict: "needs_revision", Feedback: "add detail", Evidence: []string{}, Sources: []string{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	text, rec := r.Respond(ctx, state)
	assert.Equal(t, "2+3=5", text)
	assert.Zero(t, rec)
	assert.Equal(t, "2+3=5", state.FinalResponse)
	assert.Equal(t, []string{"2+3=5"}, state.AllResponses)
	assert.Len(t, state.RevisionHistory, 1)
}

func TestResponderCancelledFirstAttemptStillAnswers(t *testing.T) {
	r := NewResponder(&fakeCompleter{ok: false}, nil, responderCfg, 5, nil)
	state := newState("hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	text, _ := r.Respond(ctx, state)
	assert.Equal(t, model.NoResponseNotice, text)
	assert.Equal(t, []string{model.NoResponseNotice}, state.AllResponses)
}

func TestResponderUsesSearchWhenTriggered(t *testing.T) {
	fc := &fakeCompleter{text: "India won.", ok: true}
	fs := &fakeSearch{results: []model.SearchResult{{Title: "Final", Content: "India won by 5 wickets", URL: "https://example.com/final"}}}
	r := NewResponder(fc, fs, responderCfg, 5, nil)
	r.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }
	state := newState("who won the cricket match yesterday")
	state.UseSearch = true

	r.Respond(context.Background(), state)
	assert.Equal(t, []string{"who won the cricket match yesterday"}, fs.queries)
	sys := fc.calls[0][0].Content
	assert.Contains(t, sys, "Today is October 18, 2026")
	assert.Contains(t, sys, "India won by 5 wickets")
}

func TestResponderSearchFailureIsSwallowed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	fc := &fakeCompleter{text: "answer", ok: true}
	fs := &fakeSearch{err: errors.New("tavily down")}
	r := NewResponder(fc, fs, responderCfg, 5, m)
	state := newState("latest news")
	state.UseSearch = true

	text, _ := r.Respond(context.Background(), state)
	assert.Equal(t, "answer", text)
	assert.NotContains(t, fc.calls[0][0].Content, "Web Search")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequests.WithLabelValues("responder", "error")))
}

func TestResponderSkipsSearchWhenNotTriggered(t *testing.T) {
	fs := &fakeSearch{}
	r := NewResponder(&fakeCompleter{text: "x", ok: true}, fs, responderCfg, 5, nil)
	r.Respond(context.Background(), newState("what did we discuss"))
	assert.Empty(t, fs.queries)
}

var criticCfg = model.CriticConfig{MaxTokens: 2000, Temperature: 0.2, MaxToolCalls: 2}

func newCritic(t *testing.T, chat *llmtest.ChatModel, search model.SearchProvider) *Critic {
	t.Helper()
	client := llm.NewFallbackClient([]llm.Provider{{Name: "test", Model: "test-model", Chat: chat}}, nil)
	c, err := NewCritic(context.Background(), client, search, criticCfg, 5, nil)
	require.NoError(t, err)
	return c
}

const goodVerdict = `{"verdict":"good","feedback":"Accurate.","evidence":["2+3=5"],"sources":[]}`

func TestCriticWithoutSearch(t *testing.T) {
	chat := llmtest.New(llmtest.Text("```json\n" + goodVerdict + "\n```"))
	c := newCritic(t, chat, nil)
	assert.False(t, c.SearchEnabled())

	v, err := c.Evaluate(context.Background(), "What is 2+3?", "5", EvalContext{Iteration: 1, MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "good", v.Verdict)
	assert.Equal(t, []string{"2+3=5"}, v.Evidence)
	assert.Nil(t, chat.BoundTools())

	msgs := chat.Call(0)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "This is evaluation iteration 1 of 3.")
	assert.Equal(t, 2000, *chat.Options(0).MaxTokens)
}

func TestCriticVerifiesWithSearch(t *testing.T) {
	chat := llmtest.New(
		llmtest.ToolCall("call_1", "web_search", `{"query":"  2+3  "}`),
		llmtest.Text(`{"verdict":"needs_revision","feedback":"2+3 is 5","evidence":["calculator"],"sources":["https://example.com/math"]}`),
	)
	fs := &fakeSearch{results: []model.SearchResult{{Title: "Math", Content: "2+3=5", URL: "https://example.com/math"}}}
	c := newCritic(t, chat, fs)
	require.True(t, c.SearchEnabled())

	v, err := c.Evaluate(context.Background(), "What is 2+3?", "2+3=6", EvalContext{Iteration: 1, MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "needs_revision", v.Verdict)
	assert.Equal(t, "2+3 is 5", v.Feedback)
	assert.Equal(t, []string{"2+3"}, fs.queries)
	require.Equal(t, 2, chat.CallCount())

	second := chat.Call(1)
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, "https://example.com/math")
	require.Len(t, chat.BoundTools(), 1)
	assert.Equal(t, "web_search", chat.BoundTools()[0].Name)
}

func TestCriticSearchFailureAddsNote(t *testing.T) {
	chat := llmtest.New(
		llmtest.ToolCall("call_1", "web_search", `{"query":"latest score"}`),
		llmtest.Text(goodVerdict),
	)
	c := newCritic(t, chat, &fakeSearch{err: errors.New("rate limited")})

	v, err := c.Evaluate(context.Background(), "latest score", "3-1", EvalContext{Iteration: 1, MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "good", v.Verdict)
	assert.Equal(t, "Accurate.\n\n"+searchUnavailable, v.Feedback)
}

func TestCriticToolCallLimit(t *testing.T) {
	chat := llmtest.New(
		llmtest.ToolCall("call_1", "web_search", `{"query":"a"}`),
		llmtest.ToolCall("call_2", "web_search", `{"query":"b"}`),
		llmtest.Text(goodVerdict),
	)
	fs := &fakeSearch{results: []model.SearchResult{{Title: "t", Content: "c", URL: "u"}}}
	c := newCritic(t, chat, fs)

	v, err := c.Evaluate(context.Background(), "q", "a", EvalContext{Iteration: 1, MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "good", v.Verdict)
	assert.Len(t, fs.queries, criticCfg.MaxToolCalls)
	require.Equal(t, 3, chat.CallCount())

	third := chat.Call(2)
	last := third[len(third)-1]
	assert.Equal(t, schema.User, last.Role)
	assert.Equal(t, toolWrapUpNotice, last.Content)
}

func TestCriticUnknownTool(t *testing.T) {
	chat := llmtest.New(
		llmtest.ToolCall("call_1", "calculator", `{"expr":"2+3"}`),
		llmtest.Text(goodVerdict),
	)
	fs := &fakeSearch{}
	c := newCritic(t, chat, fs)

	v, err := c.Evaluate(context.Background(), "q", "a", EvalContext{Iteration: 1, MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "good", v.Verdict)
	assert.Equal(t, "Accurate.", v.Feedback)
	assert.Empty(t, fs.queries)

	second := chat.Call(1)
	assert.Contains(t, second[len(second)-1].Content, "unknown_tool")
}

func TestCriticProviderFailure(t *testing.T) {
	chat := llmtest.New(llmtest.Fail(errors.New("quota exceeded")))
	c := newCritic(t, chat, nil)

	_, err := c.Evaluate(context.Background(), "q", "a", EvalContext{Iteration: 1, MaxAttempts: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrAllProvidersFailed)

	v := ErrorVerdict(err)
	assert.Equal(t, model.VerdictError, v.Verdict)
	assert.Contains(t, v.Feedback, "Error during evaluation:")
	assert.NotNil(t, v.Evidence)
}

func TestCriticUnparseableOutput(t *testing.T) {
	chat := llmtest.New(llmtest.Text("Looks mostly fine."))
	c := newCritic(t, chat, nil)

	v, err := c.Evaluate(context.Background(), "q", "a", EvalContext{Iteration: 1, MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNeedsRevision, v.Verdict)
	assert.Equal(t, "Looks mostly fine.", v.Feedback)
}

func TestToolLimitHelpers(t *testing.T) {
	s := &toolCallState{ToolCallCount: 2}
	assert.False(t, checkAndMarkToolLimit(s, 3))
	s.ToolCallCount = 3
	assert.True(t, checkAndMarkToolLimit(s, 3))
	assert.False(t, checkAndMarkToolLimit(s, 3))
	assert.Equal(t, DefaultMaxToolCalls, normalizeMaxToolCalls(0))
}
