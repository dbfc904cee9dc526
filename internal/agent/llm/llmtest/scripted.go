// Package llmtest provides scripted chat models for tests.
package llmtest

import (
	"context"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Reply is one scripted Generate result.
type Reply struct {
	Msg   *schema.Message
	Err   error
	Block bool
}

func Text(s string) Reply { return Reply{Msg: schema.AssistantMessage(s, nil)} }

func Fail(err error) Reply { return Reply{Err: err} }

// Block scripts a call that waits for ctx to end and returns its error.
func Block() Reply { return Reply{Block: true} }

// Nil scripts a call that returns neither a message nor an error.
func Nil() Reply { return Reply{} }

// ToolCall scripts an assistant message requesting one tool call.
func ToolCall(id, name, arguments string) Reply {
	return Reply{Msg: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})}
}

// ChatModel replays scripted replies in order and repeats the last one once
// the script is exhausted. It records every call.
type ChatModel struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	calls   [][]*schema.Message
	options []*einomodel.Options
	tools   []*schema.ToolInfo
}

func New(replies ...Reply) *ChatModel {
	return &ChatModel{replies: replies}
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	r, ok := m.record(input, opts)
	if !ok {
		return nil, nil
	}
	if r.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.Msg == nil {
		return nil, r.Err
	}
	cp := *r.Msg
	return &cp, r.Err
}

func (m *ChatModel) record(input []*schema.Message, opts []einomodel.Option) (Reply, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]*schema.Message{}, input...))
	m.options = append(m.options, einomodel.GetCommonOptions(&einomodel.Options{}, opts...))
	if len(m.replies) == 0 {
		return Reply{}, false
	}
	i := m.next
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	} else {
		m.next++
	}
	return m.replies[i], true
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

// WithTools records the bound tools and returns the same model.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

// CallCount returns how many times Generate ran.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Call returns the messages passed to the i-th Generate call.
func (m *ChatModel) Call(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// Options returns the common options passed to the i-th Generate call.
func (m *ChatModel) Options(i int) *einomodel.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options[i]
}

// BoundTools returns the tools last bound with WithTools.
func (m *ChatModel) BoundTools() []*schema.ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools
}
