package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "kundali:session:"
	redisIndexKey  = "kundali:sessions"
)

// RedisStore implements Repository on Redis. Each session is one JSON value;
// a sorted set scored by updated_at drives cleanup and listing.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to Redis. The url may be a redis:// URL or a bare
// host:port address. Keys expire after ttl unless refreshed by a save.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("Failed to parse Redis URL, using direct Addr", "error", err)
		opt = &redis.Options{Addr: url}
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisWithClient(rdb, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return redisKeyPrefix + id }

// GetSession retrieves session state by id.
func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// UpsertSession stores the session and refreshes its TTL. A chart already
// stored for the session is never replaced.
func (s *RedisStore) UpsertSession(ctx context.Context, state *domain.SessionState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("upsert session: missing session id")
	}

	toSave := *state
	if toSave.Chart != nil {
		existing, err := s.GetSession(ctx, state.SessionID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Chart != nil {
			toSave.Chart = existing.Chart
		}
	}
	if toSave.UpdatedAt.IsZero() {
		toSave.UpdatedAt = time.Now()
	}
	if toSave.CreatedAt.IsZero() {
		toSave.CreatedAt = toSave.UpdatedAt
	}

	raw, err := json.Marshal(&toSave)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(state.SessionID), raw, s.ttl)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(toSave.UpdatedAt.Unix()),
			Member: state.SessionID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes session state.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(sessionID))
		pipe.ZRem(ctx, redisIndexKey, sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes sessions not updated within ttl.
func (s *RedisStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	ids, err := s.rdb.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(threshold, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("query expired sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
		members[i] = id
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisIndexKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	// Keys that already expired on their own still count as cleaned up.
	return int64(len(ids)), nil
}

// ListSessionIDs returns the most recently updated session ids.
func (s *RedisStore) ListSessionIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRevRange(ctx, redisIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	return ids, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
