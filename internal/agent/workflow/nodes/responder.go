package nodes

import (
	"context"
	"strings"
	"time"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/prompts"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

// Responder produces candidate answers from the run's message history.
type Responder struct {
	llm        Completer
	search     model.SearchProvider
	cfg        model.ResponderConfig
	maxResults int
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewResponder wires the Responder. search may be nil.
func NewResponder(llm Completer, search model.SearchProvider, cfg model.ResponderConfig, maxResults int, m *metrics.Metrics) *Responder {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Responder{
		llm:        llm,
		search:     search,
		cfg:        cfg,
		maxResults: maxResults,
		metrics:    m,
		now:        time.Now,
	}
}

// Respond generates one answer, appends it to state and returns it with its revision record.
// A revision cut short by ctx leaves state untouched and returns the previous answer.
func (r *Responder) Respond(ctx context.Context, state *model.WorkflowState) (string, model.RevisionRecord) {
	log := logx.Debug().Str("node", "responder").Int("iteration", state.IterationCount)

	var results []model.SearchResult
	if state.UseSearch && r.search != nil {
		res, err := r.search.Search(ctx, state.UserQuery(), r.maxResults)
		r.metrics.Search("responder", err)
		if err != nil {
			logx.Warn().Err(err).Str("node", "responder").Msg("search failed; answering without it")
		} else {
			results = res
		}
	}

	msgs, err := prompts.RenderResponder(ctx, prompts.ResponderInput{
		State:         state,
		SearchResults: results,
		Now:           r.now(),
	})
	if err != nil {
		logx.Error().Err(err).Str("node", "responder").Msg("prompt render failed; sending history only")
		msgs = state.Messages
	}

	text, ok := r.llm.Complete(ctx, msgs, r.cfg.MaxTokens, r.cfg.Temperature)
	if ctx.Err() != nil && state.FinalResponse != "" {
		logx.Warn().Err(ctx.Err()).Str("node", "responder").Msg("cancelled mid-revision; keeping previous response")
		return state.FinalResponse, model.RevisionRecord{}
	}
	if !ok || strings.TrimSpace(text) == "" {
		logx.Warn().Str("node", "responder").Bool("provider_ok", ok).Msg("empty completion; using notice")
		text = model.NoResponseNotice
	}

	rec := state.RecordResponse(text)
	log.Int("search_results", len(results)).Int("chars", len(text)).Msg("response generated")
	return text, rec
}
