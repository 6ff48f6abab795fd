package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// RedisStore stages objects as Redis strings with a TTL backstop, so a crash
// between Put and Release cannot leak them forever.
type RedisStore struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(c, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{client: c, keyNS: "pdfmerger:blob", ttl: ttl}
}

func (s *RedisStore) Backend() string { return "redis" }

func (s *RedisStore) key(ref string) string { return fmt.Sprintf("%s:%s", s.keyNS, ref) }
func (s *RedisStore) typeKey(ref string) string {
	return fmt.Sprintf("%s:%s:type", s.keyNS, ref)
}

func (s *RedisStore) Put(ctx context.Context, data []byte, contentType string) (Handle, error) {
	ref := uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(ref), data, s.ttl)
	pipe.Set(ctx, s.typeKey(ref), contentType, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Handle{}, fmt.Errorf("redis put: %w", err)
	}
	return Handle{Ref: ref, ContentType: contentType, Size: len(data)}, nil
}

func (s *RedisStore) Get(ctx context.Context, ref string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(ref)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (s *RedisStore) Release(ctx context.Context, ref string) error {
	n, err := s.client.Del(ctx, s.key(ref), s.typeKey(ref)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }
