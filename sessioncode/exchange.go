package sessioncode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

const (
	// CodeLength is the fixed length of an issued code in hex characters.
	// Resolution rejects any other length before touching the store.
	CodeLength = 64

	// DefaultTTL is the absolute lifetime of an issued code.
	DefaultTTL = 5 * time.Minute

	codeBytes = CodeLength / 2
)

// Exchange issues single-use codes for credential pairs and resolves
// them back exactly once.
type Exchange struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithTTL overrides the code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(e *Exchange) { e.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

// WithLogger sets the exchange logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Exchange) { e.logger = logger }
}

// NewExchange creates an Exchange over the given store.
func NewExchange(store Store, opts ...Option) *Exchange {
	e := &Exchange{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Issue generates a code from a cryptographically secure source, stores
// the pair against it, and returns the code with its absolute expiry.
// Expired entries are swept opportunistically on every call.
func (e *Exchange) Issue(ctx context.Context, pair domain.CredentialPair) (string, time.Time, error) {
	if err := e.store.DeleteExpired(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("expired session code sweep failed")
	}

	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate session code: %w", err)
	}
	code := hex.EncodeToString(buf)

	now := e.now()
	entry := Entry{
		Code:      code,
		Pair:      pair,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.ttl),
	}
	if err := e.store.Put(ctx, entry); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store session code: %w", err)
	}

	e.logger.Debug().
		Str("code_fp", domain.Fingerprint(code)).
		Time("expires_at", entry.ExpiresAt).
		Msg("session code issued")

	return code, entry.ExpiresAt, nil
}

// Resolve exchanges a code for its credential pair. The first successful
// call consumes the code; every later call, and any call past expiry,
// fails with a not-found class, never the original pair.
func (e *Exchange) Resolve(ctx context.Context, code string) (domain.CredentialPair, error) {
	if len(code) != CodeLength {
		return domain.CredentialPair{}, errors.NewInvalidInput(errors.ErrInvalidCode.Error())
	}

	entry, err := e.store.Take(ctx, code)
	switch {
	case stderrors.Is(err, errors.ErrCodeNotFound):
		e.logger.Info().Str("code_fp", domain.Fingerprint(code)).Msg("session code not found or expired")
		return domain.CredentialPair{}, errors.NewNotFoundOrExpired(errors.ErrCodeNotFound.Error())
	case stderrors.Is(err, errors.ErrResolutionFailed):
		return domain.CredentialPair{}, errors.NewResolutionFailed("session code store unavailable", err)
	case err != nil:
		return domain.CredentialPair{}, errors.NewResolutionFailed("session code resolution failed", err)
	}

	if e.now().After(entry.ExpiresAt) {
		return domain.CredentialPair{}, errors.NewNotFoundOrExpired(errors.ErrCodeNotFound.Error())
	}

	e.logger.Debug().Str("code_fp", domain.Fingerprint(code)).Msg("session code resolved")
	return entry.Pair, nil
}
