package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agnox/producer/internal/store"
)

// RedisSessionStore is the primary SessionStore backing, using pipelined
// writes so an event batch costs one round-trip regardless of how many
// events it carries (§4.7's "all cache writes are pipelined into one
// round-trip per batch").
type RedisSessionStore struct {
	rdb *redis.Client
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func sessionKey(id string) string { return "ingest:session:" + id }
func logKey(taskID string) string { return "live:logs:" + taskID }
func resultsKey(sessionID string) string { return "ingest:results:" + sessionID }

func (r *RedisSessionStore) PutSession(ctx context.Context, s *Session, ttl time.Duration) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ingest: marshal session: %w", err)
	}
	return r.rdb.Set(ctx, sessionKey(s.SessionID), body, ttl).Err()
}

func (r *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	body, err := r.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("ingest: unmarshal session: %w", err)
	}
	return &s, nil
}

// TouchSession slides the session's TTL forward, per §4.7's "sliding-
// extended on every call".
func (r *RedisSessionStore) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.rdb.Expire(ctx, sessionKey(sessionID), ttl).Err()
}

func (r *RedisSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

func (r *RedisSessionStore) AppendLog(ctx context.Context, taskID, chunk string, ttl time.Duration) error {
	pipe := r.rdb.Pipeline()
	pipe.Append(ctx, logKey(taskID), chunk)
	pipe.Expire(ctx, logKey(taskID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// ApplyEventBatch pipelines every write one §4.7 event call produces into a
// single round-trip: the batch's joined log chunk, every structured result,
// and the TTL refreshes of the live log and the session (the results list
// gets no TTL), per "all cache writes are pipelined into one round-trip per
// batch."
func (r *RedisSessionStore) ApplyEventBatch(ctx context.Context, taskID, sessionID string, batch EventBatch) error {
	pipe := r.rdb.Pipeline()

	if batch.LogChunk != "" {
		pipe.Append(ctx, logKey(taskID), batch.LogChunk)
		pipe.Expire(ctx, logKey(taskID), batch.LogTTL)
	}
	for _, result := range batch.Results {
		body, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("ingest: marshal result: %w", err)
		}
		pipe.RPush(ctx, resultsKey(sessionID), body)
	}
	pipe.Expire(ctx, sessionKey(sessionID), batch.SessionTTL)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisSessionStore) DrainLog(ctx context.Context, taskID string) (string, error) {
	val, err := r.rdb.Get(ctx, logKey(taskID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *RedisSessionStore) DeleteLog(ctx context.Context, taskID string) error {
	return r.rdb.Del(ctx, logKey(taskID)).Err()
}

func (r *RedisSessionStore) PushResult(ctx context.Context, sessionID string, result store.TestResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("ingest: marshal result: %w", err)
	}
	return r.rdb.RPush(ctx, resultsKey(sessionID), body).Err()
}

func (r *RedisSessionStore) DrainResults(ctx context.Context, sessionID string) ([]store.TestResult, error) {
	raw, err := r.rdb.LRange(ctx, resultsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ingest: lrange results: %w", err)
	}
	results := make([]store.TestResult, 0, len(raw))
	for _, item := range raw {
		var tr store.TestResult
		if err := json.Unmarshal([]byte(item), &tr); err != nil {
			continue
		}
		results = append(results, tr)
	}
	return results, nil
}

func (r *RedisSessionStore) DeleteResults(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, resultsKey(sessionID)).Err()
}
