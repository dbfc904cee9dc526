package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// Verdict labels produced or consumed by the loop.
const (
	VerdictGood          = "good"
	VerdictNeedsRevision = "needs_revision"
	VerdictError         = "error"
)

// Memory modes accepted by a run.
const (
	MemoryModeShort = "short"
	MemoryModeLong  = "long"
)

// NoResponseNotice replaces an empty or missing model completion.
const NoResponseNotice = "I apologize, but I was unable to generate a response. Please try again."

// RevisionExcerptLen bounds RevisionRecord.ResponseExcerpt.
const RevisionExcerptLen = 500

// VerdictRecord is the Critic's structured judgment of one answer.
type VerdictRecord struct {
	Verdict  string   `json:"verdict"`
	Feedback string   `json:"feedback"`
	Evidence []string `json:"evidence"`
	Sources  []string `json:"sources"`
}

// RevisionRecord summarises one Responder step.
type RevisionRecord struct {
	Iteration        int    `json:"iteration"`
	ResponseExcerpt  string `json:"response"`
	HadPriorFeedback bool   `json:"had_feedback"`
}

// Turn is one prior exchange supplied by the caller for short memory mode.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunInput is the invocation boundary payload.
type RunInput struct {
	UserMessage      string `json:"message"`
	ScopeID          string `json:"scope_id"`
	AgentDescription string `json:"agent_description,omitempty"`
	PriorTurns       []Turn `json:"prior_turns,omitempty"`
	StoreMemory      bool   `json:"store_memory"`
	MemoryMode       string `json:"memory_mode"`
}

// RunResult is returned by a completed (non-streaming) run.
type RunResult struct {
	FinalResponse   string           `json:"final_response"`
	AllResponses    []string         `json:"all_responses"`
	LastVerdict     VerdictRecord    `json:"last_verdict"`
	TotalIterations int              `json:"total_iterations"`
	RevisionHistory []RevisionRecord `json:"revision_history"`
}

// Event types emitted by a streaming run.
const (
	EventResponder = "responder"
	EventCritic    = "critic"
	EventComplete  = "complete"
)

// Event is one streaming notification.
type Event struct {
	Type            string         `json:"type"`
	Iteration       int            `json:"iteration"`
	Content         string         `json:"content,omitempty"`
	Verdict         *VerdictRecord `json:"verdict,omitempty"`
	TotalIterations int            `json:"total_iterations,omitempty"`
	FinalResponse   string         `json:"final_response,omitempty"`
}

// WorkflowState stores per-run state for the refine loop.
// Concurrency model:
//   - One WorkflowState is created per run and never shared across runs.
//   - Only the loop goroutine reads or writes it; Responder and Critic never overlap.
//   - Messages, AllResponses and RevisionHistory only grow; use the methods below.
type WorkflowState struct {
	Messages        []*schema.Message
	IterationCount  int
	CriticVerdict   *VerdictRecord
	FinalResponse   string
	AllResponses    []string
	RevisionHistory []RevisionRecord
	MemoryContext   string

	// MaxAttempts is copied from loop config for prompt rendering.
	MaxAttempts int
	// UseSearch is decided once per run by the trigger classifier.
	UseSearch bool
	// TotalCostUSD accumulates model usage cost across the run.
	TotalCostUSD float64
}

// NewWorkflowState seeds the message log for one run.
func NewWorkflowState(in RunInput, memoryContext string, maxAttempts int) *WorkflowState {
	s := &WorkflowState{MemoryContext: memoryContext, MaxAttempts: maxAttempts}
	if in.AgentDescription != "" {
		s.AppendMessage(schema.SystemMessage("Your role: " + in.AgentDescription))
	}
	s.AppendMessage(schema.UserMessage(in.UserMessage))
	return s
}

// AppendMessage adds a message to the history.
func (s *WorkflowState) AppendMessage(m *schema.Message) {
	if m == nil {
		return
	}
	s.Messages = append(s.Messages, m)
}

// RecordResponse registers a Responder output and returns its revision record.
// Revision records are numbered from 1.
func (s *WorkflowState) RecordResponse(text string) RevisionRecord {
	rec := RevisionRecord{
		Iteration:        s.IterationCount + 1,
		ResponseExcerpt:  Truncate(text, RevisionExcerptLen),
		HadPriorFeedback: s.CriticVerdict != nil,
	}
	s.AppendMessage(schema.AssistantMessage(text, nil))
	s.FinalResponse = text
	s.AllResponses = append(s.AllResponses, text)
	s.RevisionHistory = append(s.RevisionHistory, rec)
	return rec
}

// RecordVerdict stores the Critic's verdict and advances the iteration count.
func (s *WorkflowState) RecordVerdict(v VerdictRecord) {
	s.CriticVerdict = &v
	s.IterationCount++
}

// UserQuery returns the most recent user message.
func (s *WorkflowState) UserQuery() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if m := s.Messages[i]; m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

// Result snapshots the state into a RunResult.
func (s *WorkflowState) Result() *RunResult {
	res := &RunResult{
		FinalResponse:   s.FinalResponse,
		AllResponses:    append([]string{}, s.AllResponses...),
		TotalIterations: s.IterationCount,
		RevisionHistory: append([]RevisionRecord{}, s.RevisionHistory...),
	}
	if s.CriticVerdict != nil {
		res.LastVerdict = *s.CriticVerdict
	}
	return res
}

// RunRecord is the audit entry written after each run.
type RunRecord struct {
	ID              string           `json:"id"`
	ScopeID         string           `json:"scope_id"`
	UserMessage     string           `json:"user_message"`
	FinalResponse   string           `json:"final_response"`
	TotalIterations int              `json:"total_iterations"`
	Verdict         string           `json:"verdict"`
	Revisions       []RevisionRecord `json:"revisions"`
	Facts           []string         `json:"facts"`
	MemoryMode      string           `json:"memory_mode"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
