package domain

// State is the canonical auth lifecycle position for the process.
type State string

const (
	StateAnonymous             State = "anonymous"
	StateInitializing          State = "initializing"
	StateAwaitingVerification  State = "awaiting_verification"
	StateVerifiedUnprovisioned State = "verified_unprovisioned"
	StateReady                 State = "ready"
	StateError                 State = "error"
)

// Terminal reports whether no further transition is expected without an
// explicit user action (sign-out or retry).
func (s State) Terminal() bool {
	return s == StateReady || s == StateError
}
