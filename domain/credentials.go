package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// CredentialPair is a transient access/refresh token pair. It lives only
// long enough to be exchanged for a Session and is never persisted or
// logged in full by this module.
type CredentialPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Credentials is the tagged result of parsing a callback link. Exactly
// one concrete variant is returned per link.
type Credentials interface {
	credentials()
}

// SessionCode is the preferred credential shape: a single-use, short-lived
// opaque stand-in that keeps raw tokens out of URLs.
type SessionCode struct {
	Code string
}

// DirectTokens is the legacy fallback carrying raw tokens in the link.
type DirectTokens struct {
	AccessToken  string
	RefreshToken string
}

// OtpHash supports the pure email-confirmation path with no
// pre-established session.
type OtpHash struct {
	TokenHash string
	Type      string
}

// NoCredentials marks a bare "return to app" link; the current session is
// simply re-fetched and checked.
type NoCredentials struct{}

func (SessionCode) credentials()   {}
func (DirectTokens) credentials()  {}
func (OtpHash) credentials()       {}
func (NoCredentials) credentials() {}

// Digest returns the full sha256 hex digest of secret material. Store
// keys use this form: truncating it would shrink the keyspace and let a
// colliding value stand in for the real one.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short stable digest of secret material, safe
// for logs. Raw tokens and codes must never appear anywhere a
// fingerprint would do; it is too short to key storage with.
func Fingerprint(secret string) string {
	return Digest(secret)[:12]
}
