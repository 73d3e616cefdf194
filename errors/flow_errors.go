package errors

import (
	stderrors "errors"
	"fmt"
)

// Class partitions auth-flow failures by how the caller should react.
type Class string

const (
	// ClassInvalidInput covers malformed links and wrong-length codes.
	// Rejected with no side effects.
	ClassInvalidInput Class = "invalid_input"
	// ClassNotFoundOrExpired means a session code was consumed or timed
	// out. The user has to restart the link flow.
	ClassNotFoundOrExpired Class = "not_found_or_expired"
	// ClassResolutionFailed is a transient network or service failure.
	// Safe to retry, state unchanged.
	ClassResolutionFailed Class = "resolution_failed"
	// ClassAuthRequired means no authenticated caller was present. Needs
	// re-authentication, not a retry.
	ClassAuthRequired Class = "auth_required"
	// ClassProvisioningFailed is a backing-store failure other than
	// "already exists". Retryable.
	ClassProvisioningFailed Class = "provisioning_failed"
	// ClassSessionRestoreCorrupted marks a stored session that failed to
	// restore. Handled by a forced local sign-out, never a crash.
	ClassSessionRestoreCorrupted Class = "session_restore_corrupted"
)

// FlowError is the typed failure crossing component boundaries.
type FlowError struct {
	Class       Class  `json:"error"`
	Description string `json:"error_description,omitempty"`
	Err         error  `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Description)
}

func (e *FlowError) Unwrap() error { return e.Err }

// ClassOf extracts the failure class, or "" for untyped errors.
func ClassOf(err error) Class {
	var fe *FlowError
	if stderrors.As(err, &fe) {
		return fe.Class
	}
	return ""
}

// Retryable reports whether the caller may re-trigger the operation
// without re-authenticating or restarting the link flow.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassResolutionFailed, ClassProvisioningFailed:
		return true
	}
	return false
}

func NewInvalidInput(description string) *FlowError {
	return &FlowError{Class: ClassInvalidInput, Description: description}
}

func NewNotFoundOrExpired(description string) *FlowError {
	return &FlowError{Class: ClassNotFoundOrExpired, Description: description}
}

func NewResolutionFailed(description string, err error) *FlowError {
	return &FlowError{Class: ClassResolutionFailed, Description: description, Err: err}
}

func NewAuthRequired(description string) *FlowError {
	return &FlowError{Class: ClassAuthRequired, Description: description}
}

func NewProvisioningFailed(description string, err error) *FlowError {
	return &FlowError{Class: ClassProvisioningFailed, Description: description, Err: err}
}

func NewSessionRestoreCorrupted(err error) *FlowError {
	return &FlowError{Class: ClassSessionRestoreCorrupted, Description: "stored session failed to restore", Err: err}
}

// Sentinels shared across packages.
var (
	ErrInvalidLink       = stderrors.New("invalid link received")
	ErrInvalidCode       = stderrors.New("session code has invalid shape")
	ErrCodeNotFound      = stderrors.New("session code not found or expired")
	ErrResolutionFailed  = stderrors.New("session code resolution failed")
	ErrInvalidCredential = stderrors.New("credential rejected by identity provider")
	ErrProfileExists     = stderrors.New("profile already exists")
	ErrProfileNotFound   = stderrors.New("profile not found")
	ErrAuthRequired      = stderrors.New("authenticated session required")
	ErrNotStarted        = stderrors.New("runtime not started")
)
