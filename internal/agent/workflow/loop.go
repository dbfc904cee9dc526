package workflow

import (
	"fmt"
	"strings"

	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

// State is a Loop Controller state.
type State string

const (
	StateResponding State = "RESPONDING"
	StateCritiquing State = "CRITIQUING"
	StateDone       State = "DONE"
)

// VerdictClass is the controller's reading of a Critic verdict.
type VerdictClass string

const (
	ClassApproved VerdictClass = "approved"
	ClassRetry    VerdictClass = "retry"
	ClassError    VerdictClass = "error"
)

var approvedVerdicts = map[string]struct{}{
	"good": {}, "approved": {}, "acceptable": {}, "pass": {}, "ok": {},
	"correct": {}, "accurate": {}, "satisfactory": {},
}

var retryVerdicts = map[string]struct{}{
	"needs_revision": {}, "revise": {}, "improve": {}, "needs improvement": {},
	"needs_improvement": {}, "incorrect": {}, "wrong": {}, "incomplete": {},
	"inaccurate": {}, "poor": {}, "bad": {}, "fail": {}, "rejected": {},
}

// ClassifyVerdict maps a raw verdict string to approved, retry or error.
// Unknown and empty verdicts are retried.
func ClassifyVerdict(verdict string) VerdictClass {
	v := strings.ToLower(strings.TrimSpace(verdict))
	if v == "error" {
		return ClassError
	}
	if _, ok := approvedVerdicts[v]; ok {
		return ClassApproved
	}
	if _, ok := retryVerdicts[v]; !ok {
		logx.Debug().Str("verdict", verdict).Msg("unrecognised verdict; retrying")
	}
	return ClassRetry
}

type trigger string

const (
	trResponded trigger = "responded"
	trApproved  trigger = "approved"
	trRetry     trigger = "retry"
	trError     trigger = "error"
	trExhausted trigger = "exhausted"
	trTimeout   trigger = "timeout"
)

var transitions = map[State]map[trigger]State{
	StateResponding: {
		trResponded: StateCritiquing,
		trTimeout:   StateDone,
	},
	StateCritiquing: {
		trApproved:  StateDone,
		trError:     StateDone,
		trExhausted: StateDone,
		trRetry:     StateResponding,
		trTimeout:   StateDone,
	},
}

func nextState(from State, tr trigger) (State, error) {
	to, ok := transitions[from][tr]
	if !ok {
		return StateDone, fmt.Errorf("no transition from %s on %s", from, tr)
	}
	return to, nil
}

// afterCritique picks the trigger for a finished Critic step. The attempt bound
// wins over every verdict.
func afterCritique(class VerdictClass, iterationCount, maxAttempts int) trigger {
	if iterationCount > maxAttempts {
		return trExhausted
	}
	switch class {
	case ClassApproved:
		return trApproved
	case ClassError:
		return trError
	default:
		return trRetry
	}
}
