package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultMemoryPrefix = "memory"

// storedDoc is the JSON value kept per document in the collection hash.
type storedDoc struct {
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float64         `json:"embedding"`
}

// RedisMemoryStore is an embedding-indexed document store on Redis hashes.
// Each collection is one hash; similarity is computed client side.
type RedisMemoryStore struct {
	rdb      redis.Cmdable
	embedder embedding.Embedder
	prefix   string
}

type MemoryStoreOption func(*RedisMemoryStore)

// WithKeyPrefix overrides the "memory" key prefix.
func WithKeyPrefix(prefix string) MemoryStoreOption {
	return func(s *RedisMemoryStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedisMemoryStore(rdb redis.Cmdable, embedder embedding.Embedder, opts ...MemoryStoreOption) *RedisMemoryStore {
	s := &RedisMemoryStore{rdb: rdb, embedder: embedder, prefix: defaultMemoryPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisMemoryStore) docsKey(collection string) string {
	return fmt.Sprintf("%s:%s:docs", s.prefix, collection)
}

func (s *RedisMemoryStore) collectionsKey() string {
	return s.prefix + ":collections"
}

func (s *RedisMemoryStore) Store(ctx context.Context, collection string, texts []string, metadatas []map[string]string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, fmt.Errorf("store: %d metadatas for %d texts", len(metadatas), len(texts))
	}

	vecs, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(vecs), len(texts))
	}

	key := s.docsKey(collection)
	ids := make([]string, len(texts))
	fields := make(map[string]any, len(texts))
	for i, text := range texts {
		doc := storedDoc{Content: text, Embedding: vecs[i]}
		if metadatas != nil {
			doc.Metadata = metadatas[i]
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("marshal document: %w", err)
		}
		ids[i] = uuid.NewString()
		fields[ids[i]] = b
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, s.collectionsKey(), collection)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store memory documents")
		return nil, errx.WrapRedis(err)
	}
	return ids, nil
}

func (s *RedisMemoryStore) Search(ctx context.Context, collection, query string, k int, filter map[string]string) ([]model.MemoryItem, error) {
	if k <= 0 {
		return []model.MemoryItem{}, nil
	}
	key := s.docsKey(collection)

	rows, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load memory documents")
		return nil, errx.WrapRedis(err)
	}
	if len(rows) == 0 {
		return []model.MemoryItem{}, nil
	}

	vecs, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	qv := vecs[0]

	items := make([]model.MemoryItem, 0, len(rows))
	for id, raw := range rows {
		var doc storedDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			logx.Warn().Err(err).Str("key", key).Str("id", id).Msg("skipping undecodable memory document")
			continue
		}
		if !matchesFilter(doc.Metadata, filter) {
			continue
		}
		items = append(items, model.MemoryItem{
			ID:       id,
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    cosineSimilarity(qv, doc.Embedding),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score == items[j].Score {
			return items[i].ID < items[j].ID
		}
		return items[i].Score > items[j].Score
	})
	if len(items) > k {
		items = items[:k]
	}
	return items, nil
}

func (s *RedisMemoryStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	key := s.docsKey(collection)
	if err := s.rdb.HDel(ctx, key, ids...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete memory documents")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisMemoryStore) DeleteAll(ctx context.Context, collection string) error {
	key := s.docsKey(collection)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to clear memory collection")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisMemoryStore) DeleteCollection(ctx context.Context, collection string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.docsKey(collection))
	pipe.SRem(ctx, s.collectionsKey(), collection)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("collection", collection).Msg("failed to drop memory collection")
		return errx.WrapRedis(err)
	}
	return nil
}

// collections lists registered collection names.
func (s *RedisMemoryStore) collections(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.collectionsKey()).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	sort.Strings(names)
	return names, nil
}

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ model.MemoryStore = (*RedisMemoryStore)(nil)
