package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
)

//go:embed template/responder_base.txt
var responderBasePrompt string

//go:embed template/responder_revision.txt
var responderRevisionPrompt string

//go:embed template/responder_search.txt
var responderSearchPrompt string

const (
	// SearchExcerptLen caps each search result's content in the prompt.
	SearchExcerptLen = 800
	historyKey       = "history"
	dateLayout       = "January 02, 2006"
)

// ResponderInput is everything the Responder prompt depends on.
type ResponderInput struct {
	State         *model.WorkflowState
	SearchResults []model.SearchResult
	Now           time.Time
}

type searchItem struct {
	Index   int
	Title   string
	Content string
	URL     string
}

// RenderResponder builds the Responder message list: a system prompt followed by
// the run's message history. Search text is passed as template data so braces in
// fetched content are never read as template syntax.
func RenderResponder(ctx context.Context, in ResponderInput) ([]*schema.Message, error) {
	if in.State == nil {
		return nil, fmt.Errorf("responder prompt: state is nil")
	}
	s := in.State
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	system := responderBasePrompt
	vars := map[string]any{
		"CurrentDate":   now.Format(dateLayout),
		"MemoryContext": s.MemoryContext,
		historyKey:      s.Messages,
	}

	if s.IterationCount > 0 && s.CriticVerdict != nil {
		system = responderRevisionPrompt
		vars["Attempt"] = s.IterationCount + 1
		vars["MaxAttempts"] = s.MaxAttempts
		vars["Feedback"] = s.CriticVerdict.Feedback
		vars["Evidence"] = s.CriticVerdict.Evidence
		vars["Sources"] = s.CriticVerdict.Sources
	}

	if items := searchItems(in.SearchResults); len(items) > 0 {
		system += responderSearchPrompt
		vars["SearchResults"] = items
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.MessagesPlaceholder(historyKey, false),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("responder prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("responder prompt render: empty result")
	}
	return msgs, nil
}

func searchItems(results []model.SearchResult) []searchItem {
	items := make([]searchItem, 0, len(results))
	for _, r := range results {
		if r.Content == "" && r.Title == "" {
			continue
		}
		items = append(items, searchItem{
			Index:   len(items) + 1,
			Title:   r.Title,
			Content: model.Truncate(r.Content, SearchExcerptLen),
			URL:     r.URL,
		})
	}
	return items
}
