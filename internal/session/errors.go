package session

import (
	"errors"
	"fmt"
)

var (
	// ErrIncorrectCredentials is returned when the service rejects the account.
	// It is terminal: the session will not try to log in again.
	ErrIncorrectCredentials = errors.New("incorrect username or password")
	// ErrInvalidSavedState is returned when a saved token/session pair is malformed.
	ErrInvalidSavedState = errors.New("invalid saved session data")
	// ErrNoSecret is returned when a restored session needs to log in but has no
	// password and no way to ask for one.
	ErrNoSecret = errors.New("no password available for login")
)

// ConstructionError reports malformed input given to New.
type ConstructionError struct {
	Field  string
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownSessionError reports a refresh step that ended with an unexpected status
// or never got a response. It is retryable by the next refresh.
type UnknownSessionError struct {
	Step       string // "landing" or "login"
	StatusCode int    // 0 when the request itself failed
	Err        error
}

func (e *UnknownSessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s step failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("session %s step failed: unexpected status %d", e.Step, e.StatusCode)
}

func (e *UnknownSessionError) Unwrap() error {
	return e.Err
}
