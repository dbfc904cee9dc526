package nodes

import (
	"context"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const DefaultMaxToolCalls = 3

// Completer is the text-only side of the model fallback client.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message, maxTokens int, temperature float32) (string, bool)
}

// ToolGenerator is the tool-calling side of the model fallback client.
type ToolGenerator interface {
	GenerateWithTools(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo, opts ...einomodel.Option) (*schema.Message, error)
}

// toolCallState tracks tool rounds within one Critic evaluation.
type toolCallState struct {
	ToolCallCount        int
	ToolCallLimitReached bool
}

// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit evaluates whether another tool call would exceed the
// limit and, if so, marks the state accordingly. Returns true when marked now.
func checkAndMarkToolLimit(state *toolCallState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !state.ToolCallLimitReached && state.ToolCallCount >= max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}
