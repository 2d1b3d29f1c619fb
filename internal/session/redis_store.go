package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront:cart_token:"

type redisStore struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

// NewRedisStore keeps tokens in Redis with a sliding expiry of ttl.
func NewRedisStore(rdb goredis.UniversalClient, ttl time.Duration) TokenStore {
	return &redisStore{rdb: rdb, ttl: ttl}
}

func (r *redisStore) Get(ctx context.Context, sessionID string) (string, error) {
	v, err := r.rdb.Get(ctx, redisKeyPrefix+sessionID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get cart token: %w", err)
	}
	if r.ttl > 0 {
		_ = r.rdb.Expire(ctx, redisKeyPrefix+sessionID, r.ttl).Err()
	}
	return v, nil
}

func (r *redisStore) Put(ctx context.Context, sessionID, token string) error {
	if err := r.rdb.Set(ctx, redisKeyPrefix+sessionID, token, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart token: %w", err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis del cart token: %w", err)
	}
	return nil
}
