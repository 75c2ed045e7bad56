package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoRefreshToken   = errors.New("no refresh token stored")
	ErrRefreshRejected  = errors.New("refresh rejected")
	ErrAlreadySignedIn  = errors.New("already signed in")
	ErrSignInInProgress = errors.New("sign-in already in progress")
	ErrInvalidRole      = errors.New("invalid role")
	ErrSignInAborted    = errors.New("sign-in aborted by sign-out")
)

// refreshFailure ties a rejected refresh to the session it was made for, so expiring on it
// cannot end a newer session.
type refreshFailure struct {
	sessionID string
	cause     error
}

func (e *refreshFailure) Error() string {
	return fmt.Sprintf("%s: %v", ErrRefreshRejected, e.cause)
}

func (e *refreshFailure) Unwrap() []error {
	return []error{ErrRefreshRejected, e.cause}
}
