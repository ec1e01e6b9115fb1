package sessioncore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot probe which addresses exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when no valid access token accompanies a
	// guarded operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied is returned when the token is valid but lacks the
	// required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUserNotFound is returned by administrative lookups; login paths
	// fold it into ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned when the email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountInvalid is returned for malformed account requests.
	ErrAccountInvalid = errors.New("invalid account request")
	// ErrRoleInvalid is returned for an unknown role name.
	ErrRoleInvalid = errors.New("invalid account role")
	// ErrAccountLocked is returned while the lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned for disabled accounts.
	ErrAccountInactive = errors.New("account disabled")
	// ErrTokenExpired is returned for an access token past its lifetime.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any other unusable access token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid is returned for unknown, expired, or malformed
	// refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when an already-rotated refresh token is
	// presented again, which signals theft of the old token. It wraps
	// ErrRefreshInvalid so coarse errors.Is checks still match.
	ErrRefreshReuse = fmt.Errorf("%w: reuse detected", ErrRefreshInvalid)
	// ErrRateLimited is the target sentinel for [RateLimitedError].
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordPolicy is returned when a new password fails policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the old.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrServiceUnavailable is returned when the store cannot answer in
	// time. The engine fails closed: no access is granted on timeout.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build
	// or after Close.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitedError carries the retry hint alongside the ErrRateLimited
// sentinel. Matches errors.Is(err, ErrRateLimited).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
