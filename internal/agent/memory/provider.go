package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/metrics"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const (
	DefaultTopK       = 3
	DefaultShortTurns = 5

	longExcerptLen  = 150
	shortExcerptLen = 100
)

// Provider retrieves and persists scope-partitioned memories.
// Retrieve and Persist never fail the caller; failures are logged and counted.
type Provider struct {
	store      model.MemoryStore
	topK       int
	shortTurns int
	metrics    *metrics.Metrics
}

// NewProvider wraps a store. A nil store disables long-term memory.
func NewProvider(store model.MemoryStore, cfg model.MemoryConfig, m *metrics.Metrics) *Provider {
	p := &Provider{store: store, topK: cfg.TopK, shortTurns: cfg.ShortTurns, metrics: m}
	if p.topK <= 0 {
		p.topK = DefaultTopK
	}
	if p.shortTurns <= 0 {
		p.shortTurns = DefaultShortTurns
	}
	return p
}

// CollectionName maps a scope to its collection.
func CollectionName(scopeID string) string {
	return fmt.Sprintf("agent_%s_memory", scopeID)
}

// Retrieve returns up to k memories for scopeID ranked by similarity to query.
func (p *Provider) Retrieve(ctx context.Context, scopeID, query string, k int) []model.MemoryItem {
	if p.store == nil || scopeID == "" {
		return nil
	}
	if k <= 0 {
		k = p.topK
	}
	items, err := p.store.Search(ctx, CollectionName(scopeID), query, k, nil)
	p.metrics.MemoryOp("retrieve", err)
	if err != nil {
		logx.Warn().Err(err).Str("scope_id", scopeID).Msg("memory retrieval failed; continuing without memory")
		return nil
	}
	return items
}

// Persist stores text in the scope's collection.
func (p *Provider) Persist(ctx context.Context, scopeID, text string, metadata map[string]string) {
	if p.store == nil || scopeID == "" || strings.TrimSpace(text) == "" {
		return
	}
	_, err := p.store.Store(ctx, CollectionName(scopeID), []string{text}, []map[string]string{metadata})
	p.metrics.MemoryOp("persist", err)
	if err != nil {
		logx.Warn().Err(err).Str("scope_id", scopeID).Msg("memory persistence failed")
		return
	}
	logx.Debug().Str("scope_id", scopeID).Msg("memory persisted")
}

// Purge deletes every memory for scopeID.
func (p *Provider) Purge(ctx context.Context, scopeID string) error {
	if p.store == nil {
		return nil
	}
	err := p.store.DeleteCollection(ctx, CollectionName(scopeID))
	p.metrics.MemoryOp("purge", err)
	if err != nil {
		return fmt.Errorf("purge memory for scope %s: %w", scopeID, err)
	}
	return nil
}

// BuildContext renders the memory text injected into the Responder prompt.
func (p *Provider) BuildContext(ctx context.Context, in model.RunInput) string {
	switch in.MemoryMode {
	case model.MemoryModeLong:
		return buildLongContext(p.Retrieve(ctx, in.ScopeID, in.UserMessage, p.topK))
	case model.MemoryModeShort:
		return buildShortContext(trimTail(in.PriorTurns, p.shortTurns))
	default:
		return ""
	}
}

// PersistExchange stores one finished turn when the run asked for long-term memory.
func (p *Provider) PersistExchange(ctx context.Context, in model.RunInput, response string) {
	if !in.StoreMemory || in.MemoryMode != model.MemoryModeLong {
		return
	}
	text := fmt.Sprintf("User: %s\nResponse: %s", in.UserMessage, response)
	p.Persist(ctx, in.ScopeID, text, map[string]string{
		"type":    "conversation",
		"scopeId": in.ScopeID,
	})
}

func buildLongContext(items []model.MemoryItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, it := range items {
		b.WriteString("- " + model.Truncate(it.Content, longExcerptLen) + "...\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildShortContext(turns []model.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		b.WriteString(t.Role + ": " + model.Truncate(t.Content, shortExcerptLen) + "...\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func trimTail(turns []model.Turn, maxTurns int) []model.Turn {
	if len(turns) <= maxTurns {
		result := make([]model.Turn, len(turns))
		copy(result, turns)
		return result
	}
	source := turns[len(turns)-maxTurns:]
	result := make([]model.Turn, len(source))
	copy(result, source)
	return result
}
