package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultAuditMaxEntries caps the per-scope run log.
const DefaultAuditMaxEntries = 200

type RedisRunAuditRepository struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	maxEntries int64
}

func NewRedisRunAuditRepository(rdb redis.Cmdable, ttl time.Duration) *RedisRunAuditRepository {
	return &RedisRunAuditRepository{rdb: rdb, ttl: ttl, maxEntries: DefaultAuditMaxEntries}
}

func (r *RedisRunAuditRepository) runsKey(scopeID string) string {
	return fmt.Sprintf("audit:%s:runs", scopeID)
}

func (r *RedisRunAuditRepository) Append(ctx context.Context, rec model.RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		logx.Error().Err(err).Str("scope_id", rec.ScopeID).Msg("failed to marshal run record")
		return fmt.Errorf("marshal run record: %w", err)
	}
	key := r.runsKey(rec.ScopeID)

	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, -r.maxEntries, -1)
	// extend TTL on touch
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to append run record to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisRunAuditRepository) List(ctx context.Context, scopeID string, limit int) ([]model.RunRecord, error) {
	key := r.runsKey(scopeID)
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	rows, err := r.rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.RunRecord{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load run records from redis")
		return nil, errx.WrapRedis(err)
	}

	recs := make([]model.RunRecord, 0, len(rows))
	for i, s := range rows {
		var rec model.RunRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			logx.Error().Err(err).Str("scope_id", scopeID).Int("index", i).Msg("failed to unmarshal run record")
			return nil, fmt.Errorf("unmarshal run record at index %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (r *RedisRunAuditRepository) Clear(ctx context.Context, scopeID string) error {
	key := r.runsKey(scopeID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete run records from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.RunAuditRepository = (*RedisRunAuditRepository)(nil)
