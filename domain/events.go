package domain

// Event is a tagged provider change-feed notification. Only the fields
// this core actually reads are modelled; unrecognized kinds surface as
// UnknownEvent and are a no-op for consumers, not a parse error.
type Event interface {
	event()
}

// SignedIn reports a session established out-of-band.
type SignedIn struct {
	Session Session
}

// SignedOut reports the provider invalidated the current session.
type SignedOut struct{}

// UserUpdated carries user-record changes; the verification flag is the
// only field this core reacts to.
type UserUpdated struct {
	UserID   string
	Verified bool
}

// TokenRefreshed reports a rotated credential pair for the live session.
type TokenRefreshed struct {
	Session Session
}

// UnknownEvent preserves the kind label of feed entries this core does
// not understand.
type UnknownEvent struct {
	Kind string
}

func (SignedIn) event()       {}
func (SignedOut) event()      {}
func (UserUpdated) event()    {}
func (TokenRefreshed) event() {}
func (UnknownEvent) event()   {}
