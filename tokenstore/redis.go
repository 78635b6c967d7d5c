package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is the key namespace used when none is configured.
const DefaultRedisPrefix = "finauth"

// Redis is a [Store] keeping the pair in two Redis string keys,
// "<prefix>:accessToken" and "<prefix>:refreshToken". Save and Clear run in
// a MULTI/EXEC transaction so both keys change together.
//
//	Performance: Load is one MGET; Save and Clear are one transaction.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis returns a store using client under prefix. An empty prefix
// falls back to [DefaultRedisPrefix].
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{redis: client, prefix: prefix}
}

func (r *Redis) accessKey() string {
	return r.prefix + ":" + KeyAccessToken
}

func (r *Redis) refreshKey() string {
	return r.prefix + ":" + KeyRefreshToken
}

// Save implements [Store].
func (r *Redis) Save(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return ErrEmptyAccessToken
	}

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.accessKey(), accessToken, 0)
		if refreshToken != "" {
			pipe.Set(ctx, r.refreshKey(), refreshToken, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Load implements [Store].
func (r *Redis) Load(ctx context.Context) (Tokens, error) {
	values, err := r.redis.MGet(ctx, r.accessKey(), r.refreshKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Tokens{}, nil
		}
		return Tokens{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var tokens Tokens
	if len(values) > 0 {
		tokens.AccessToken, _ = values[0].(string)
	}
	if len(values) > 1 {
		tokens.RefreshToken, _ = values[1].(string)
	}
	return tokens, nil
}

// Clear implements [Store].
func (r *Redis) Clear(ctx context.Context) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.accessKey(), r.refreshKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
