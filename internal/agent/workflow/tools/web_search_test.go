package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
)

type fakeSearch struct {
	results []model.SearchResult
	err     error
	gotN    int
	gotQ    string
}

func (f *fakeSearch) Search(_ context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	f.gotQ, f.gotN = query, maxResults
	return f.results, f.err
}

func TestWebSearchToolInfo(t *testing.T) {
	ws := NewWebSearchTool(&fakeSearch{}, 0)
	info, err := ws.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ToolWebSearch, info.Name)

	infos, err := GetToolInfos(context.Background(), []tool.BaseTool{ws})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, ToolWebSearch, infos[0].Name)
}

func TestWebSearchToolReturnsHits(t *testing.T) {
	fs := &fakeSearch{results: []model.SearchResult{
		{Title: "Addition", Content: strings.Repeat("a", 1000), URL: "https://example.com/add"},
		{Title: "Second", Content: "b", URL: "https://example.com/b"},
	}}
	ws := NewWebSearchTool(fs, 3)

	raw, err := ws.InvokableRun(context.Background(), `{"query":"2+3"}`)
	require.NoError(t, err)
	assert.Equal(t, "2+3", fs.gotQ)
	assert.Equal(t, 3, fs.gotN)
	assert.False(t, SearchFailed(raw))

	var out WebSearchOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Equal(t, 2, out.Total)
	assert.Len(t, out.Results[0].Content, contentExcerptLen)
	assert.Equal(t, "https://example.com/b", out.Results[1].URL)
}

func TestWebSearchToolFailureIsPayload(t *testing.T) {
	ws := NewWebSearchTool(&fakeSearch{err: errors.New("rate limited")}, 3)

	raw, err := ws.InvokableRun(context.Background(), `{"query":"latest score"}`)
	require.NoError(t, err)
	assert.True(t, SearchFailed(raw))
	assert.Contains(t, raw, "rate limited")
}

func TestWebSearchToolEmptyQuery(t *testing.T) {
	fs := &fakeSearch{}
	ws := NewWebSearchTool(fs, 3)

	raw, err := ws.InvokableRun(context.Background(), `{"query":"   "}`)
	require.NoError(t, err)
	assert.True(t, SearchFailed(raw))
	assert.Empty(t, fs.gotQ)
}

func TestSanitizeArguments(t *testing.T) {
	got := SanitizeArguments(ToolWebSearch, `{"query":"  who won  ","max_results":"50"}`)
	assert.JSONEq(t, `{"query":"who won","max_results":10}`, got)

	got = SanitizeArguments(ToolWebSearch, `{"query":42,"max_results":0}`)
	assert.JSONEq(t, `{"query":"42","max_results":1}`, got)

	got = SanitizeArguments(ToolWebSearch, `{"query":"x","max_results":true}`)
	assert.JSONEq(t, `{"query":"x"}`, got)

	assert.Equal(t, "not json", SanitizeArguments(ToolWebSearch, "not json"))
}

func TestUnknownToolResult(t *testing.T) {
	assert.JSONEq(t, `{"error":"unknown_tool","name":"calc","note":"ignored"}`, UnknownToolResult("calc"))
	assert.True(t, SearchFailed(UnknownToolResult("calc")))
}
