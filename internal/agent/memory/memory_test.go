package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/embedding"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/agent/repo"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisProvider(t *testing.T) (*Provider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := repo.NewRedisMemoryStore(rdb, embedding.NewHashing(128))
	return NewProvider(store, model.MemoryConfig{}, nil), mr
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "agent_42_memory", CollectionName("42"))
}

func TestPersistThenRetrieve(t *testing.T) {
	p, _ := newRedisProvider(t)
	ctx := context.Background()

	p.Persist(ctx, "S", "User: explain quantum computing\nResponse: qubits", map[string]string{"type": "conversation"})
	p.Persist(ctx, "other", "User: explain quantum computing\nResponse: elsewhere", nil)

	items := p.Retrieve(ctx, "S", "quantum computing", 3)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Content, "qubits")

	require.NoError(t, p.Purge(ctx, "S"))
	assert.Empty(t, p.Retrieve(ctx, "S", "quantum computing", 3))
	assert.Len(t, p.Retrieve(ctx, "other", "quantum computing", 3), 1)
}

func TestBuildContextLong(t *testing.T) {
	p, _ := newRedisProvider(t)
	ctx := context.Background()
	p.Persist(ctx, "S", "User: explain quantum computing "+strings.Repeat("x", 300), nil)

	got := p.BuildContext(ctx, model.RunInput{ScopeID: "S", UserMessage: "what did we discuss about quantum computing", MemoryMode: model.MemoryModeLong})
	require.True(t, strings.HasPrefix(got, "Relevant memories:\n- User: explain quantum computing"))
	line := strings.Split(got, "\n")[1]
	assert.Equal(t, len("- ")+longExcerptLen+len("..."), len(line))
}

func TestBuildContextShortUsesLastTurns(t *testing.T) {
	p := NewProvider(nil, model.MemoryConfig{ShortTurns: 2}, nil)
	got := p.BuildContext(context.Background(), model.RunInput{
		MemoryMode: model.MemoryModeShort,
		PriorTurns: []model.Turn{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
			{Role: "user", Content: "third"},
		},
	})
	assert.Equal(t, "Recent conversation:\nassistant: second...\nuser: third...", got)
}

func TestBuildContextWithoutMode(t *testing.T) {
	p := NewProvider(nil, model.MemoryConfig{}, nil)
	assert.Empty(t, p.BuildContext(context.Background(), model.RunInput{UserMessage: "hi"}))
}

func TestRedisFailureIsSwallowed(t *testing.T) {
	p, mr := newRedisProvider(t)
	mr.Close()
	ctx := context.Background()
	assert.NotPanics(t, func() {
		p.Persist(ctx, "S", "text", nil)
	})
	assert.Empty(t, p.Retrieve(ctx, "S", "q", 3))
	assert.Error(t, p.Purge(ctx, "S"))
}

type recordingStore struct {
	model.MemoryStore
	texts []string
	metas []map[string]string
	err   error
}

func (r *recordingStore) Store(_ context.Context, _ string, texts []string, metas []map[string]string) ([]string, error) {
	r.texts = append(r.texts, texts...)
	r.metas = append(r.metas, metas...)
	return []string{"id"}, r.err
}

func TestPersistExchange(t *testing.T) {
	store := &recordingStore{}
	p := NewProvider(store, model.MemoryConfig{}, nil)
	ctx := context.Background()

	p.PersistExchange(ctx, model.RunInput{ScopeID: "S", UserMessage: "q", StoreMemory: true, MemoryMode: model.MemoryModeShort}, "a")
	p.PersistExchange(ctx, model.RunInput{ScopeID: "S", UserMessage: "q", StoreMemory: false, MemoryMode: model.MemoryModeLong}, "a")
	assert.Empty(t, store.texts)

	p.PersistExchange(ctx, model.RunInput{ScopeID: "S", UserMessage: "q", StoreMemory: true, MemoryMode: model.MemoryModeLong}, "a")
	require.Len(t, store.texts, 1)
	assert.Equal(t, "User: q\nResponse: a", store.texts[0])
	assert.Equal(t, map[string]string{"type": "conversation", "scopeId": "S"}, store.metas[0])

	store.err = errors.New("down")
	assert.NotPanics(t, func() {
		p.PersistExchange(ctx, model.RunInput{ScopeID: "S", UserMessage: "q", StoreMemory: true, MemoryMode: model.MemoryModeLong}, "a")
	})
}

func TestExtractKeyFacts(t *testing.T) {
	facts := ExtractKeyFacts("Paris is the capital of France. The Eiffel Tower has three levels. Visitors can climb the stairs. Rome is old.")
	require.Len(t, facts, 3)
	assert.Equal(t, "Paris is the capital of France", facts[0])
	assert.Equal(t, "Rome is old", facts[1])
	assert.Equal(t, "The Eiffel Tower has three levels", facts[2])
}

func TestExtractKeyFactsFiltersShort(t *testing.T) {
	assert.Empty(t, ExtractKeyFacts("It is. Ok."))
	assert.Empty(t, ExtractKeyFacts(""))
}
