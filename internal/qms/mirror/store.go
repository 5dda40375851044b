package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss signals a record absent from the mirror. It is never surfaced to
// API callers; the gateway falls back to the primary store instead.
var ErrMiss = errors.New("mirror miss")

// Store is the mirror-store adapter contract. All operations are
// best-effort: the gateway treats every error as a warning, never a failure.
type Store interface {
	List(ctx context.Context, companyID string) ([]Record, error)
	Get(ctx context.Context, sourceID string) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, companyID, sourceID string) error
}

// RedisStore keeps one JSON record per sourceId and a per-tenant id set so
// lists stay a set-union plus a pipelined multi-get.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps a redis client. A zero ttl keeps records until
// explicitly deleted; the self-healing backfill re-creates expired ones.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func recordKey(sourceID string) string {
	return "qms:nc:" + sourceID
}

func companyKey(companyID string) string {
	return "qms:company:" + companyID + ":ncs"
}

func (s *RedisStore) List(ctx context.Context, companyID string) ([]Record, error) {
	ids, err := s.rdb.SMembers(ctx, companyKey(companyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("mirror list members: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mirror list mget: %w", err)
	}

	records := make([]Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// record expired or evicted; drop the dangling set member
			s.rdb.SRem(ctx, companyKey(companyID), ids[i])
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) Get(ctx context.Context, sourceID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, recordKey(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("mirror get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("mirror get decode: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Upsert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("mirror upsert encode: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, recordKey(rec.SourceID), payload, s.ttl)
	pipe.SAdd(ctx, companyKey(rec.Company), rec.SourceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror upsert: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, companyID, sourceID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, recordKey(sourceID))
	pipe.SRem(ctx, companyKey(companyID), sourceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror delete: %w", err)
	}
	return nil
}
