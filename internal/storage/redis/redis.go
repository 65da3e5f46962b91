package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepo is the token revocation store: a revoked jti is a key with its
// own expiry, independent of the token's signature validity.
type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// RevokeToken blacklists a jti. The caller passes a ttl of at least the
// token's remaining lifetime so a revoked token can never come back.
func (r *RedisRepo) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	const op = "storage.redis.RevokeToken"

	key := blacklistKey(jti)

	if err := r.client.Set(ctx, key, "", ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsTokenRevoked reports whether a jti is on the blacklist.
func (r *RedisRepo) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "storage.redis.IsTokenRevoked"

	n, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
