package sessioncode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

// RedisStore implements Store on a shared redis instance so every
// app-server replica can resolve codes issued by any other. Single-use
// resolution rides on GETDEL, which is atomic server-side.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a redis-backed code store. The prefix namespaces
// keys when the instance is shared.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) redisKey(code string) string {
	return fmt.Sprintf("%s:session_code:%s", r.prefix, domain.Digest(code))
}

// Put implements Store.Put. Redis owns expiry via the key TTL.
func (r *RedisStore) Put(ctx context.Context, entry Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return errors.NewInvalidInput("session code already expired at issuance")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal session code entry: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(entry.Code), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrResolutionFailed, err)
	}
	return nil
}

// Take implements Store.Take.
func (r *RedisStore) Take(ctx context.Context, code string) (*Entry, error) {
	payload, err := r.client.GetDel(ctx, r.redisKey(code)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrResolutionFailed, err)
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrResolutionFailed, err)
	}
	// The stored code must match the presented one; the key alone is
	// not proof of possession.
	if entry.Code != code {
		return nil, errors.ErrCodeNotFound
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, errors.ErrCodeNotFound
	}
	return &entry, nil
}

// DeleteExpired implements Store.DeleteExpired. Redis evicts expired
// keys itself, so the issuance-time sweep is a no-op here.
func (r *RedisStore) DeleteExpired(context.Context) error { return nil }

// Close implements Store.Close. The client is shared and owned by the
// caller.
func (r *RedisStore) Close() error { return nil }
