package domain

import "time"

// Session represents one authenticated principal as reported by the
// identity provider. It is owned by the auth state machine and replaced
// wholesale on every transition; nothing mutates it field-by-field.
type Session struct {
	Handle    string    // opaque provider session handle
	UserID    string
	Email     string
	Phone     string
	Verified  bool      // email/phone ownership confirmed by the provider
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its provider expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Identifier returns the contact address the session was established
// with, preferring email.
func (s *Session) Identifier() string {
	if s.Email != "" {
		return s.Email
	}
	return s.Phone
}
