package sessioncode

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

// MemoryStore implements Store using ttlcache. Suitable for a
// single-process deployment; multi-instance deployments should use
// RedisStore behind the same interface.
type MemoryStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, Entry]
}

// NewMemoryStore creates an in-memory code store. Touch-on-hit is
// disabled: validating a code never extends its life.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)

	return &MemoryStore{cache: cache}
}

// Put implements Store.Put.
func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return errors.NewInvalidInput("session code already expired at issuance")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(domain.Digest(entry.Code), entry, ttl)
	return nil
}

// Take implements Store.Take. The mutex makes get-and-delete a single
// step so two racing resolvers cannot both win the same code.
func (s *MemoryStore) Take(_ context.Context, code string) (*Entry, error) {
	key := domain.Digest(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(key)
	if item == nil {
		return nil, errors.ErrCodeNotFound
	}
	entry := item.Value()
	// Only the exact issued code consumes the entry; a key collision
	// must neither resolve nor destroy the victim's entry.
	if entry.Code != code {
		return nil, errors.ErrCodeNotFound
	}
	s.cache.Delete(key)

	if time.Now().After(entry.ExpiresAt) {
		return nil, errors.ErrCodeNotFound
	}
	return &entry, nil
}

// DeleteExpired implements Store.DeleteExpired.
func (s *MemoryStore) DeleteExpired(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.DeleteExpired()
	return nil
}

// Len reports the number of live entries. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error {
	s.cache.DeleteAll()
	return nil
}
