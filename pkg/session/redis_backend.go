package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend using Redis.
// The session list lives under a single key, written wholesale on every
// mutation, matching the file backend's single-slot semantics.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`
	// Password is the Redis password (optional).
	Password string `yaml:"password"`
	// DB is the Redis database number.
	DB int `yaml:"db"`
	// Prefix is the key prefix for all session keys (default: "mindbridge:").
	Prefix string `yaml:"prefix"`
	// TTL is the expiry duration for stored data (0 = never expire).
	TTL time.Duration `yaml:"ttl"`
	// PoolSize is the connection pool size (default: 10).
	PoolSize int `yaml:"pool_size"`
}

// NewRedisBackend creates a new Redis storage backend.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "mindbridge:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisBackend{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
	}, nil
}

// NewRedisBackendFromClient creates a Redis backend from an existing client.
// This is useful for testing with miniredis.
func NewRedisBackendFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "mindbridge:"
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key helpers
func (b *RedisBackend) recordsKey() string {
	return b.prefix + "sessions"
}

func (b *RedisBackend) flagKey(name string) string {
	return b.prefix + "flag:" + name
}

// LoadRecords retrieves the stored session list.
// Missing or malformed data fails open to an empty list.
func (b *RedisBackend) LoadRecords(ctx context.Context) ([]Record, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrStorageClosed
	}
	b.mu.RUnlock()

	data, err := b.client.Get(ctx, b.recordsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return []Record{}, nil
	}
	if records == nil {
		records = []Record{}
	}

	return records, nil
}

// SaveRecords replaces the stored session list.
func (b *RedisBackend) SaveRecords(ctx context.Context, records []Record) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrStorageClosed
	}
	b.mu.RUnlock()

	if records == nil {
		records = []Record{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	if err := b.client.Set(ctx, b.recordsKey(), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}

	return nil
}

// LoadFlag retrieves a boolean settings flag. Missing flags are false.
func (b *RedisBackend) LoadFlag(ctx context.Context, name string) (bool, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return false, ErrStorageClosed
	}
	b.mu.RUnlock()

	val, err := b.client.Get(ctx, b.flagKey(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get flag: %w", err)
	}

	return val == "1", nil
}

// SaveFlag stores a boolean settings flag.
func (b *RedisBackend) SaveFlag(ctx context.Context, name string, value bool) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrStorageClosed
	}
	b.mu.RUnlock()

	val := "0"
	if value {
		val = "1"
	}

	if err := b.client.Set(ctx, b.flagKey(name), val, b.ttl).Err(); err != nil {
		return fmt.Errorf("save flag: %w", err)
	}

	return nil
}

// Close releases resources held by the backend.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.client.Close()
}

// Ping checks if the Redis connection is alive.
func (b *RedisBackend) Ping(ctx context.Context) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrStorageClosed
	}
	b.mu.RUnlock()

	return b.client.Ping(ctx).Err()
}
