package sessioncode

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb, "authcore"), mr
}

func redisEntry(code string) Entry {
	now := time.Now()
	return Entry{
		Code:      code,
		Pair:      domain.CredentialPair{AccessToken: "tok1", RefreshToken: "tok2"},
		IssuedAt:  now,
		ExpiresAt: now.Add(DefaultTTL),
	}
}

func TestRedisStoreTakeIsSingleUse(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	code := strings.Repeat("ab", CodeLength/2)

	require.NoError(t, store.Put(ctx, redisEntry(code)))

	entry, err := store.Take(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "tok1", entry.Pair.AccessToken)

	_, err = store.Take(ctx, code)
	require.ErrorIs(t, err, errors.ErrCodeNotFound)
}

func TestRedisStoreKeysHoldDigestsNotCodes(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	code := strings.Repeat("cd", CodeLength/2)

	require.NoError(t, store.Put(ctx, redisEntry(code)))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.NotContains(t, keys[0], code, "raw code must not appear in storage keys")
	assert.Contains(t, keys[0], domain.Digest(code))
}

func TestRedisStoreKeyCollisionDoesNotResolve(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	victim := strings.Repeat("ab", CodeLength/2)
	forged := strings.Repeat("cd", CodeLength/2)

	// Plant the victim's entry under the forged code's key, as a digest
	// collision would.
	entry := redisEntry(victim)
	entry.Pair.AccessToken = "victim-access"
	payload, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, mr.Set(store.redisKey(forged), string(payload)))

	_, err = store.Take(ctx, forged)
	require.ErrorIs(t, err, errors.ErrCodeNotFound,
		"a code other than the stored one must never resolve the entry")
}

func TestRedisStoreExpiryEviction(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	code := strings.Repeat("ef", CodeLength/2)

	require.NoError(t, store.Put(ctx, redisEntry(code)))

	mr.FastForward(DefaultTTL + time.Second)

	_, err := store.Take(ctx, code)
	require.ErrorIs(t, err, errors.ErrCodeNotFound)
}

func TestRedisStoreUnknownCode(t *testing.T) {
	store, _ := newRedisStore(t)

	_, err := store.Take(context.Background(), strings.Repeat("00", CodeLength/2))
	require.ErrorIs(t, err, errors.ErrCodeNotFound)
}

func TestRedisStoreRejectsAlreadyExpiredEntry(t *testing.T) {
	store, _ := newRedisStore(t)

	entry := redisEntry(strings.Repeat("11", CodeLength/2))
	entry.ExpiresAt = time.Now().Add(-time.Second)
	err := store.Put(context.Background(), entry)
	assert.Equal(t, errors.ClassInvalidInput, errors.ClassOf(err))
}
