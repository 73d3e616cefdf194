package domain

import (
	"context"
	"time"
)

// Profile is the backing record provisioned for an authenticated
// identity.
type Profile struct {
	ID        string    `bson:"_id,omitempty"`
	UserID    string    `bson:"user_id"`
	Email     string    `bson:"email,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// ProfileStore is the opaque keyed record store behind provisioning.
// CreateProfile must fail with errors.ErrProfileExists on a duplicate
// user ID; that signal is how racing devices converge on one row.
type ProfileStore interface {
	CreateProfile(ctx context.Context, userID, email string) (*Profile, error)
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}
