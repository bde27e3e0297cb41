package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentroom/core"
)

// DefaultRedisPrefix namespaces memory record keys.
const DefaultRedisPrefix = "agentroom:memory:"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	KeyPrefix string
	// TTL expires records after inactivity; 0 keeps them forever.
	TTL time.Duration
}

// RedisStore keeps one JSON value per agent under <prefix><name>. It lets
// several server processes share agent memory.
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{KeyPrefix: DefaultRedisPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(name string) string { return s.opts.KeyPrefix + name }

// Load fetches and decodes the record for name.
func (s *RedisStore) Load(ctx context.Context, name string) (*core.MemoryRecord, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrRecordNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	var rec core.MemoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode memory record %s: %w", name, err)
	}
	return &rec, nil
}

// Save encodes and stores the record for name.
func (s *RedisStore) Save(ctx context.Context, name string, rec *core.MemoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode memory record %s: %w", name, err)
	}
	if err := s.client.Set(ctx, s.key(name), data, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}
