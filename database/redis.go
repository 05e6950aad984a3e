package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spacearena/lead-pipeline/pipeline"
)

const (
	REDIS_LOCK_PREFIX        = "pipeline:lock:"
	REDIS_BULK_PREFIX        = "pipeline:bulk:"
	REDIS_BULK_TARGET_PREFIX = "pipeline:bulk_target:"
	REDIS_LOCK_RETRY         = 25 * time.Millisecond
	REDIS_UNLOCK_TIMEOUT     = 2 * time.Second
)

func ConnectRedis(ctx context.Context, uri string) (*redis.Client, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URI: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return rdb, nil
}

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes work on a key across processes. A lock expires after
// ttl so a crashed holder cannot block a contact forever.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := REDIS_LOCK_PREFIX + key
	token := uuid.NewString()

	ticker := time.NewTicker(REDIS_LOCK_RETRY)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, pipeline.ConflictErr("timed out waiting for lock on %s", key)
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				unlockCtx, cancel := context.WithTimeout(context.Background(), REDIS_UNLOCK_TIMEOUT)
				defer cancel()
				_ = releaseScript.Run(unlockCtx, l.rdb, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, pipeline.ConflictErr("timed out waiting for lock on %s", key)
		case <-ticker.C:
		}
	}
}

// RedisJobStore records bulk progress in one hash per job.
type RedisJobStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisJobStore(rdb *redis.Client, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{rdb: rdb, ttl: ttl}
}

func (s *RedisJobStore) Completed(ctx context.Context, jobID string) (map[string]bool, error) {
	fields, err := s.rdb.HGetAll(ctx, REDIS_BULK_PREFIX+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load bulk job %s: %w", jobID, err)
	}

	done := make(map[string]bool, len(fields))
	for contactID := range fields {
		done[contactID] = true
	}
	return done, nil
}

func (s *RedisJobStore) BindTarget(ctx context.Context, jobID, target string) (string, error) {
	key := REDIS_BULK_TARGET_PREFIX + jobID
	set, err := s.rdb.SetNX(ctx, key, target, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to bind bulk job %s: %w", jobID, err)
	}
	if set {
		return target, nil
	}

	bound, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("failed to load bulk job %s: %w", jobID, err)
	}
	return bound, nil
}

func (s *RedisJobStore) MarkCompleted(ctx context.Context, jobID, contactID string) error {
	key := REDIS_BULK_PREFIX + jobID
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, contactID, time.Now().UTC().Format(time.RFC3339))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record bulk progress: %w", err)
	}
	return nil
}
