package store

import "errors"

var (
	// ErrUnavailable indicates the backing store could not be reached or
	// timed out. Callers must treat it as a system error, never as a deny
	// or allow decision.
	ErrUnavailable = errors.New("credential store unavailable")
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned by CreateUser when the email index
	// already holds an entry for the address.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrAlreadyRevoked is returned when the revocation compare-and-set
	// finds the token revoked. During refresh this means the caller lost
	// the rotation race.
	ErrAlreadyRevoked = errors.New("refresh token already revoked")
	// ErrCorruptRecord is returned when a stored hash cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt store record")
)
