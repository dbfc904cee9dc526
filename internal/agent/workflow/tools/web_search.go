package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const (
	ToolWebSearch = "web_search"

	DefaultMaxResults = 5
	maxResultsCap     = 10
	contentExcerptLen = 800
)

// ===================================
// Web Search Tool
// ===================================

type WebSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type WebSearchHit struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// WebSearchOutput is what the Critic sees. Error is set instead of returning a Go
// error so a failed lookup never aborts the tool round.
type WebSearchOutput struct {
	Results []WebSearchHit `json:"results"`
	Total   int            `json:"total"`
	Error   string         `json:"error,omitempty"`
}

// NewWebSearchTool wraps a search provider as an invokable eino tool.
func NewWebSearchTool(provider model.SearchProvider, maxResults int) tool.InvokableTool {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWebSearch,
			Desc: "Search the web for current information to verify factual claims: calculations, dates, recent events, statistics, names. Returns titles, content excerpts and source URLs.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Search query describing the claim to verify.",
					Required: true,
				},
				"max_results": {
					Type: schema.Integer,
					Desc: fmt.Sprintf("Maximum number of results to return (default: %d, max: %d)", maxResults, maxResultsCap),
				},
			}),
		},
		func(ctx context.Context, in *WebSearchInput) (*WebSearchOutput, error) {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				return &WebSearchOutput{Results: []WebSearchHit{}, Error: "query is required"}, nil
			}
			n := in.MaxResults
			if n <= 0 {
				n = maxResults
			}
			n = clampInt(n, 1, maxResultsCap)

			results, err := provider.Search(ctx, query, n)
			if err != nil {
				logx.Warn().Err(err).Str("tool", ToolWebSearch).Str("query", query).Msg("web search failed")
				return &WebSearchOutput{Results: []WebSearchHit{}, Error: err.Error()}, nil
			}

			hits := make([]WebSearchHit, 0, len(results))
			for _, r := range results {
				hits = append(hits, WebSearchHit{
					Title:   r.Title,
					Content: model.Truncate(r.Content, contentExcerptLen),
					URL:     r.URL,
				})
			}
			if len(hits) > n {
				hits = hits[:n]
			}
			return &WebSearchOutput{Results: hits, Total: len(hits)}, nil
		},
	)
}

// SearchFailed reports whether a web_search tool message carries an error payload.
func SearchFailed(content string) bool {
	var out WebSearchOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return false
	}
	return out.Error != ""
}

// SanitizeArguments normalises model-produced tool arguments. It never fails;
// arguments that are not a JSON object are returned unchanged.
func SanitizeArguments(name, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments
	}

	switch name {
	case ToolWebSearch:
		if v, ok := m["query"]; ok {
			switch vv := v.(type) {
			case string:
				m["query"] = strings.TrimSpace(vv)
			default:
				m["query"] = strings.TrimSpace(fmt.Sprint(v))
			}
		}
		if v, ok := m["max_results"]; ok {
			switch vv := v.(type) {
			case float64:
				m["max_results"] = clampInt(int(vv), 1, maxResultsCap)
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
					m["max_results"] = clampInt(n, 1, maxResultsCap)
				} else {
					delete(m, "max_results")
				}
			default:
				delete(m, "max_results")
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

// UnknownToolResult is returned to the model for hallucinated tool names.
func UnknownToolResult(name string) string {
	return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name)
}

// GetToolInfos collects ToolInfo for binding to a chat model.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
