package observers

import (
	"context"
	"sync"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
)

type costKey struct{}

// CostTracker sums model usage cost for one run.
type CostTracker struct {
	mu    sync.Mutex
	calls int
	total float64
}

func (t *CostTracker) Add(c model.UsageCost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.total += c.TotalCost
}

// Total returns the accumulated USD cost and the number of priced calls.
func (t *CostTracker) Total() (float64, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.calls
}

// WithCostTracker attaches t to ctx so model callbacks can report usage into it.
func WithCostTracker(ctx context.Context, t *CostTracker) context.Context {
	return context.WithValue(ctx, costKey{}, t)
}

func costTrackerFrom(ctx context.Context) *CostTracker {
	t, _ := ctx.Value(costKey{}).(*CostTracker)
	return t
}
