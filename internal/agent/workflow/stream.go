package workflow

import (
	"context"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
)

// Stream runs one turn in a goroutine and emits an event after every node,
// then a terminal complete event. The channel is closed when the run ends or
// ctx is cancelled; a cancelled consumer stops the loop at the next node boundary.
func (r *Runner) Stream(ctx context.Context, in model.RunInput) (<-chan model.Event, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	events := make(chan model.Event)
	go func() {
		defer close(events)

		send := func(ev model.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		res := r.execute(ctx, in, send)
		send(model.Event{
			Type:            model.EventComplete,
			Iteration:       res.TotalIterations,
			TotalIterations: res.TotalIterations,
			FinalResponse:   res.FinalResponse,
		})
	}()
	return events, nil
}
