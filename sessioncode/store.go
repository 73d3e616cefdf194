// Package sessioncode issues and resolves the short-lived, single-use
// codes that stand in for raw credential pairs inside callback links.
package sessioncode

import (
	"context"
	"time"

	"go.peddle.app/authcore/domain"
)

// Entry is one stored code with its credential pair and absolute expiry.
// Code travels with the entry so Take can verify the presented code
// against the stored one instead of trusting the key alone.
type Entry struct {
	Code      string                `json:"code"`
	Pair      domain.CredentialPair `json:"pair"`
	IssuedAt  time.Time             `json:"issued_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// Store holds issued codes. Implementations key entries by the full
// sha256 digest of the code, never the raw code, and must make Take
// atomic: a code can be handed out at most once, even under concurrent
// resolution.
type Store interface {
	// Put stores an entry until its ExpiresAt.
	Put(ctx context.Context, entry Entry) error

	// Take removes and returns the entry for a code in one step.
	// Consumed or expired codes fail with errors.ErrCodeNotFound; a
	// transport failure of a remote backend wraps
	// errors.ErrResolutionFailed instead, so callers can tell "dead
	// link" from "try again".
	Take(ctx context.Context, code string) (*Entry, error)

	// DeleteExpired opportunistically sweeps expired entries. Called on
	// each issuance; never required to run on a background timer.
	DeleteExpired(ctx context.Context) error

	Close() error
}
