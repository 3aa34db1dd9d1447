// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmadilemanteater/yaytapi-go/internal/log"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis connection string or host:port
	Password string
	DB       int
}

// RedisStore is the RemoteDocumentStore backend. Each collection maps to a
// Redis hash named "yayti.{collection}"; HSET/HGET/HDEL on field "key"
// store the document, mirroring the spec's {key, value} document shape
// without requiring a document-database driver (see DESIGN.md for why no
// MongoDB driver is wired — none appears anywhere in the retrieved
// examples).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed RemoteDocumentStore. Grounded on
// the teacher's internal/cache/redis.go NewRedisCache.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.Addr)
	if err != nil {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.WithComponent("cache.redis").Info().Str("addr", cfg.Addr).Msg("connected to remote document store")
	return &RedisStore{client: client}, nil
}

func hashName(collection string) string {
	return "yayti." + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) (json.RawMessage, bool) {
	l := log.WithComponent("cache.redis")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := s.client.HGet(ctx, hashName(collection), key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		l.Warn().Err(err).Str("collection", collection).Str("key", key).Msg("redis get failed")
		return nil, false
	}
	if !json.Valid(val) {
		l.Warn().Str("collection", collection).Str("key", key).Msg("redis value is not valid json")
		return nil, false
	}
	return json.RawMessage(val), true
}

func (s *RedisStore) Put(ctx context.Context, collection, key string, value json.RawMessage) {
	l := log.WithComponent("cache.redis")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.HSet(ctx, hashName(collection), key, []byte(value)).Err(); err != nil {
		l.Warn().Err(err).Str("collection", collection).Str("key", key).Msg("redis put failed")
	}
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) {
	l := log.WithComponent("cache.redis")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.HDel(ctx, hashName(collection), key).Err(); err != nil {
		l.Warn().Err(err).Str("collection", collection).Str("key", key).Msg("redis delete failed")
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
