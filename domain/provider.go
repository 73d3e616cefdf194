package domain

import "context"

// Provider is the opaque identity service this core reconciles against.
// Implementations must distinguish transport failures from "credential
// invalid" responses; callers branch on that distinction.
type Provider interface {
	// GetSession re-fetches the current session from the provider,
	// refreshing credentials if needed. Returns (nil, nil) when no
	// session exists.
	GetSession(ctx context.Context) (*Session, error)

	// SetSession applies a credential pair as the live session.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)

	// VerifyOtp exchanges an emailed token hash for a session.
	VerifyOtp(ctx context.Context, tokenHash, otpType string) (*Session, error)

	// SignOut invalidates the current session with the provider.
	SignOut(ctx context.Context) error

	// Resend asks the provider to dispatch another verification message.
	Resend(ctx context.Context, otpType, identifier string) error

	// Subscribe opens the change-notification feed scoped to a user.
	// The returned cancel func tears the subscription down; it must be
	// called on sign-out or process teardown.
	Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error)
}
