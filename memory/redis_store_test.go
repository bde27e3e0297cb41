package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroom/core"
)

func setupTestRedis(t *testing.T, optFns ...func(o *RedisOptions)) (*miniredis.Miniredis, *RedisStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisStore(client, optFns...)
}

func TestRedisStore_SaveLoad(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "ChatManager")
	assert.ErrorIs(t, err, core.ErrRecordNotFound)

	rec := &core.MemoryRecord{
		LongTerm:    []core.Message{core.SystemMessage("summary")},
		ToolHistory: []core.Message{core.UserMessage("tool result")},
	}
	require.NoError(t, store.Save(ctx, "ChatManager", rec))
	assert.True(t, mr.Exists(DefaultRedisPrefix+"ChatManager"))

	got, err := store.Load(ctx, "ChatManager")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRedisStore_CorruptRecordLoadsEmptyMemory(t *testing.T) {
	mr, store := setupTestRedis(t)
	require.NoError(t, mr.Set(DefaultRedisPrefix+"broken", "not json"))

	_, err := store.Load(context.Background(), "broken")
	assert.Error(t, err)

	m := New(context.Background(), "broken", store)
	assert.Empty(t, m.LongTerm())
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	mr, store := setupTestRedis(t, func(o *RedisOptions) {
		o.KeyPrefix = "test:"
		o.TTL = time.Minute
	})
	require.NoError(t, store.Save(context.Background(), "a", &core.MemoryRecord{}))
	assert.True(t, mr.Exists("test:a"))
	assert.Equal(t, time.Minute, mr.TTL("test:a"))
}

func TestMemory_RoundTripThroughRedis(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	m := New(ctx, "Writer", store)
	m.AddLongTerm(core.SystemMessage("draft summary"))
	require.NoError(t, m.Save(ctx))

	fresh := New(ctx, "Writer", store)
	assert.Equal(t, []core.Message{core.SystemMessage("draft summary")}, fresh.LongTerm())
}
