package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
)

func TestStreamEventOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	resp := &scriptedResponder{answers: []string{"2+3=6", "2+3=5"}}
	crit := &scriptedCritic{verdicts: []string{"needs_revision", "good"}}
	runner := newTestRunner(t, resp, crit, Deps{})

	events, err := runner.Stream(context.Background(), model.RunInput{UserMessage: "What is 2+3?"})
	require.NoError(t, err)

	var got []model.Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 5)

	wantTypes := []string{model.EventResponder, model.EventCritic, model.EventResponder, model.EventCritic, model.EventComplete}
	for i, ev := range got {
		assert.Equal(t, wantTypes[i], ev.Type, "event %d", i)
	}
	assert.Equal(t, "2+3=6", got[0].Content)
	assert.Equal(t, 1, got[0].Iteration)
	require.NotNil(t, got[1].Verdict)
	assert.Equal(t, "needs_revision", got[1].Verdict.Verdict)
	assert.Equal(t, 1, got[1].Iteration)
	assert.Equal(t, "2+3=5", got[2].Content)
	assert.Equal(t, 2, got[2].Iteration)
	assert.Equal(t, "good", got[3].Verdict.Verdict)
	assert.Equal(t, 2, got[4].TotalIterations)
	assert.Equal(t, "2+3=5", got[4].FinalResponse)
}

func TestStreamBoundedRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	resp := &scriptedResponder{answers: []string{"a"}}
	crit := &scriptedCritic{verdicts: []string{"needs_revision"}}
	runner := newTestRunner(t, resp, crit, Deps{})

	events, err := runner.Stream(context.Background(), model.RunInput{UserMessage: "q"})
	require.NoError(t, err)

	responders, critics := 0, 0
	var last model.Event
	for ev := range events {
		switch ev.Type {
		case model.EventResponder:
			responders++
		case model.EventCritic:
			critics++
		}
		last = ev
	}
	assert.Equal(t, 4, responders)
	assert.Equal(t, 4, critics)
	assert.Equal(t, model.EventComplete, last.Type)
	assert.Equal(t, 4, last.TotalIterations)
}

func TestStreamConsumerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	resp := &scriptedResponder{answers: []string{"a"}}
	crit := &scriptedCritic{verdicts: []string{"needs_revision"}}
	runner := newTestRunner(t, resp, crit, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := runner.Stream(ctx, model.RunInput{UserMessage: "q"})
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, model.EventResponder, first.Type)
	cancel()

	// the channel must close even if nobody reads further events
	for range events {
	}
	assert.LessOrEqual(t, resp.calls, 4)
}
