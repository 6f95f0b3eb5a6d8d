package cdek

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cdek:token:"

// RedisTokenStore shares the token between replicas through Redis. Entries
// expire together with the token they hold.
type RedisTokenStore struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

// NewRedisTokenStore creates a store keyed by account.
func NewRedisTokenStore(client redis.Cmdable, account string) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		key:    redisKeyPrefix + account,
		now:    time.Now,
	}
}

// Key returns the Redis key used for the token.
func (s *RedisTokenStore) Key() string {
	return s.key
}

// Load returns the stored token, or nil when the key is missing.
func (s *RedisTokenStore) Load(ctx context.Context) (*Token, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading token from redis: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding stored token: %w", err)
	}
	return &tok, nil
}

// Save stores tok until its expiry.
func (s *RedisTokenStore) Save(ctx context.Context, tok *Token) error {
	ttl := tok.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("saving token to redis: %w", err)
	}
	return nil
}

// Clear deletes the stored token.
func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clearing token in redis: %w", err)
	}
	return nil
}

var _ TokenStore = (*RedisTokenStore)(nil)
var _ TokenStore = (*MemoryTokenStore)(nil)
