package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/memory"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/classifier"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/nodes"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/workflow/observers"
	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const (
	DefaultMaxAttempts = 3
	persistTimeout     = 10 * time.Second
)

// ResponderNode produces one candidate answer per call.
type ResponderNode interface {
	Respond(ctx context.Context, state *model.WorkflowState) (string, model.RevisionRecord)
}

// CriticNode judges one answer.
type CriticNode interface {
	Evaluate(ctx context.Context, question, answer string, ec nodes.EvalContext) (model.VerdictRecord, error)
}

// MemoryContext supplies memory before the loop and records the exchange after it.
type MemoryContext interface {
	BuildContext(ctx context.Context, in model.RunInput) string
	PersistExchange(ctx context.Context, in model.RunInput, response string)
}

// Deps are the collaborators of a Runner. Memory, Audit and Metrics may be nil.
type Deps struct {
	Responder ResponderNode
	Critic    CriticNode
	Memory    MemoryContext
	Audit     model.RunAuditRepository
	Metrics   *metrics.Metrics
}

// Runner executes the Responder/Critic refine loop, one independent state per run.
type Runner struct {
	responder ResponderNode
	critic    CriticNode
	memory    MemoryContext
	audit     model.RunAuditRepository
	metrics   *metrics.Metrics
	cfg       model.LoopConfig
	now       func() time.Time
}

func NewRunner(d Deps, cfg model.LoopConfig) (*Runner, error) {
	if d.Responder == nil || d.Critic == nil {
		return nil, fmt.Errorf("responder and critic are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Runner{
		responder: d.Responder,
		critic:    d.Critic,
		memory:    d.Memory,
		audit:     d.Audit,
		metrics:   d.Metrics,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Run executes one user turn to completion. Only invalid input returns an error.
func (r *Runner) Run(ctx context.Context, in model.RunInput) (*model.RunResult, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, in, nil), nil
}

// normalizeInput validates a run request; an empty memory mode means long.
func normalizeInput(in model.RunInput) (model.RunInput, error) {
	if strings.TrimSpace(in.UserMessage) == "" {
		return in, errx.InvalidInput("message is required")
	}
	mode := strings.ToLower(strings.TrimSpace(in.MemoryMode))
	switch mode {
	case "":
		mode = model.MemoryModeLong
	case model.MemoryModeShort, model.MemoryModeLong:
	default:
		return in, errx.InvalidInput(fmt.Sprintf("unknown memory mode %q", in.MemoryMode))
	}
	in.MemoryMode = mode
	return in, nil
}

func (r *Runner) execute(ctx context.Context, in model.RunInput, emit func(model.Event)) *model.RunResult {
	runID := uuid.NewString()
	start := r.now()

	decision := classifier.Classify(in.UserMessage)
	memoryContext := ""
	if r.memory != nil {
		memoryContext = r.memory.BuildContext(ctx, in)
	}
	if decision.UseMemory && memoryContext == "" {
		logx.Debug().Str("run_id", runID).Str("scope_id", in.ScopeID).Msg("recall question without memory context")
	}

	state := model.NewWorkflowState(in, memoryContext, r.cfg.MaxAttempts)
	state.UseSearch = decision.UseSearch

	tracker := &observers.CostTracker{}
	loopCtx := observers.WithCostTracker(ctx, tracker)
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		loopCtx, cancel = context.WithTimeout(loopCtx, r.cfg.Timeout)
		defer cancel()
	}

	r.loop(loopCtx, runID, state, emit)

	cost, pricedCalls := tracker.Total()
	state.TotalCostUSD = cost
	r.metrics.RunFinished(state.IterationCount)
	r.afterRun(ctx, runID, in, state)

	verdict := ""
	if state.CriticVerdict != nil {
		verdict = state.CriticVerdict.Verdict
	}
	logx.Info().
		Str("run_id", runID).
		Str("scope_id", in.ScopeID).
		Int("iterations", state.IterationCount).
		Int("responses", len(state.AllResponses)).
		Str("verdict", verdict).
		Bool("search", state.UseSearch).
		Float64("cost_usd", state.TotalCostUSD).
		Int("priced_calls", pricedCalls).
		Dur("elapsed", r.now().Sub(start)).
		Msg("run finished")
	return state.Result()
}

func (r *Runner) loop(ctx context.Context, runID string, state *model.WorkflowState, emit func(model.Event)) {
	st := StateResponding
	for st != StateDone {
		var tr trigger
		if err := ctx.Err(); err != nil {
			logx.Warn().Err(err).Str("run_id", runID).Str("state", string(st)).Msg("loop budget exhausted; keeping latest response")
			tr = trTimeout
		} else {
			switch st {
			case StateResponding:
				prior := len(state.AllResponses)
				text, _ := r.responder.Respond(ctx, state)
				if err := ctx.Err(); err != nil && len(state.AllResponses) == prior {
					logx.Warn().Err(err).Str("run_id", runID).Msg("loop budget exhausted during revision; keeping latest response")
					tr = trTimeout
					break
				}
				if emit != nil {
					emit(model.Event{Type: model.EventResponder, Iteration: state.IterationCount + 1, Content: text})
				}
				tr = trResponded
			case StateCritiquing:
				v, err := r.critic.Evaluate(ctx, state.UserQuery(), state.FinalResponse, nodes.EvalContext{
					Iteration:     state.IterationCount + 1,
					MaxAttempts:   state.MaxAttempts,
					MemoryContext: state.MemoryContext,
				})
				if err != nil {
					logx.Warn().Err(err).Str("run_id", runID).Msg("critic invocation failed")
					v = nodes.ErrorVerdict(err)
				}
				state.RecordVerdict(v)
				class := ClassifyVerdict(v.Verdict)
				r.metrics.Verdict(string(class))
				if emit != nil {
					emit(model.Event{Type: model.EventCritic, Iteration: state.IterationCount, Verdict: &v})
				}
				tr = afterCritique(class, state.IterationCount, state.MaxAttempts)
			}
		}

		next, err := nextState(st, tr)
		if err != nil {
			logx.Error().Err(err).Str("run_id", runID).Msg("invalid loop transition")
		}
		logx.Debug().
			Str("run_id", runID).
			Str("from", string(st)).
			Str("to", string(next)).
			Str("trigger", string(tr)).
			Int("iteration", state.IterationCount).
			Msg("loop transition")
		r.metrics.Transition(string(st), string(next))
		st = next
	}
}

// afterRun persists memory and the audit record. It outlives caller cancellation
// so a disconnected stream still records the finished turn.
func (r *Runner) afterRun(ctx context.Context, runID string, in model.RunInput, state *model.WorkflowState) {
	if state.FinalResponse == "" || state.FinalResponse == model.NoResponseNotice {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if r.memory != nil {
		r.memory.PersistExchange(pctx, in, state.FinalResponse)
	}
	if r.audit == nil || in.ScopeID == "" {
		return
	}
	verdict := ""
	if state.CriticVerdict != nil {
		verdict = state.CriticVerdict.Verdict
	}
	rec := model.RunRecord{
		ID:              runID,
		ScopeID:         in.ScopeID,
		UserMessage:     in.UserMessage,
		FinalResponse:   state.FinalResponse,
		TotalIterations: state.IterationCount,
		Verdict:         verdict,
		Revisions:       state.RevisionHistory,
		Facts:           memory.ExtractKeyFacts(state.FinalResponse),
		MemoryMode:      in.MemoryMode,
		CreatedAt:       r.now().UTC(),
	}
	if err := r.audit.Append(pctx, rec); err != nil {
		logx.Warn().Err(err).Str("run_id", runID).Str("scope_id", in.ScopeID).Msg("run audit append failed")
	}
}
