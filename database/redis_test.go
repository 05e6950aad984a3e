package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer rdb.Close()

	_, err = ConnectRedis(context.Background(), "://nope")
	assert.Error(t, err)
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	mr, rdb := newMiniredis(t)
	locker := NewRedisLocker(rdb, time.Minute)

	unlock, err := locker.Lock(context.Background(), "contact:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(REDIS_LOCK_PREFIX+"contact:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "contact:1")
	assert.ErrorIs(t, err, pipeline.ErrConcurrencyConflict)

	unlock()
	assert.False(t, mr.Exists(REDIS_LOCK_PREFIX+"contact:1"))

	unlock, err = locker.Lock(context.Background(), "contact:1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	_, rdb := newMiniredis(t)
	locker := NewRedisLocker(rdb, time.Minute)

	unlock, err := locker.Lock(context.Background(), "contact:2")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second, err := locker.Lock(ctx, "contact:2")
	require.NoError(t, err)
	second()
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, rdb := newMiniredis(t)
	locker := NewRedisLocker(rdb, time.Second)

	unlock, err := locker.Lock(context.Background(), "contact:3")
	require.NoError(t, err)

	// The lock expired and another process took it over.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(REDIS_LOCK_PREFIX+"contact:3", "someone-else"))

	unlock()
	value, err := mr.Get(REDIS_LOCK_PREFIX + "contact:3")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestRedisJobStoreTracksProgress(t *testing.T) {
	mr, rdb := newMiniredis(t)
	jobs := NewRedisJobStore(rdb, time.Hour)
	ctx := context.Background()

	done, err := jobs.Completed(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, done)

	require.NoError(t, jobs.MarkCompleted(ctx, "job-1", "c1"))
	require.NoError(t, jobs.MarkCompleted(ctx, "job-1", "c2"))
	require.NoError(t, jobs.MarkCompleted(ctx, "job-2", "c3"))

	done, err = jobs.Completed(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"c1": true, "c2": true}, done)

	assert.Equal(t, time.Hour, mr.TTL(REDIS_BULK_PREFIX+"job-1"))
	mr.FastForward(2 * time.Hour)

	done, err = jobs.Completed(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestRedisJobStoreKeepsFirstTarget(t *testing.T) {
	mr, rdb := newMiniredis(t)
	jobs := NewRedisJobStore(rdb, time.Hour)
	ctx := context.Background()

	bound, err := jobs.BindTarget(ctx, "job-1", "campaign:stage-a")
	require.NoError(t, err)
	assert.Equal(t, "campaign:stage-a", bound)

	bound, err = jobs.BindTarget(ctx, "job-1", "campaign:stage-b")
	require.NoError(t, err)
	assert.Equal(t, "campaign:stage-a", bound)

	assert.Equal(t, time.Hour, mr.TTL(REDIS_BULK_TARGET_PREFIX+"job-1"))
}
