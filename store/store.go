package store

import (
	"context"
	"time"
)

// Store is the credential store contract consumed by the authentication
// core. Implementations must make the three conditional updates
// (RecordLoginFailure, RecordLoginSuccess, RevokeRefreshToken) atomic with
// respect to concurrent calls for the same key.
type Store interface {
	// CreateUser inserts a new user. Fails with [ErrDuplicateEmail] when the
	// email is already registered.
	CreateUser(ctx context.Context, u *User) error
	// GetUserByEmail resolves the email index and loads the user record.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID loads a user record by id.
	GetUserByID(ctx context.Context, id string) (*User, error)
	// UpdatePasswordHash replaces the stored password digest.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	// SetUserActive flips the soft-deactivation flag.
	SetUserActive(ctx context.Context, userID string, active bool) error

	// RecordLoginFailure atomically increments the failed-attempt counter
	// and, when the counter reaches threshold, sets the lock expiry to
	// now+lockFor, all in one conditional update. A locked account is
	// never incremented further (AlreadyLocked is reported instead).
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration) (FailureOutcome, error)
	// RecordLoginSuccess resets the failure counter, clears the lock
	// expiry, and stamps the last-login time.
	RecordLoginSuccess(ctx context.Context, userID string) error
	// ClearLockout resets the failure counter and lock expiry without
	// touching the last-login stamp (explicit admin reset).
	ClearLockout(ctx context.Context, userID string) error

	// InsertRefreshToken persists a new refresh-token row and indexes its
	// digest under the owning user.
	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	// GetRefreshTokenByDigest loads a token row by secret digest. Returns
	// [ErrNotFound] when no row matches; expired and revoked rows are
	// returned as-is so the caller applies one validity predicate to both.
	GetRefreshTokenByDigest(ctx context.Context, digest [32]byte) (*RefreshToken, error)
	// RevokeRefreshToken marks the row revoked via compare-and-set. The
	// update succeeds for exactly one caller; later callers get
	// [ErrAlreadyRevoked] and missing rows get [ErrNotFound].
	RevokeRefreshToken(ctx context.Context, digest [32]byte) error
	// RevokeAllForUser revokes every outstanding token of the user and
	// returns how many transitions it won.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	// DeleteExpiredRefreshTokens removes rows past expiry and reconciles
	// the per-user digest index. Safe to run concurrently with lookups.
	DeleteExpiredRefreshTokens(ctx context.Context) (int, error)

	// InsertLoginAttempt appends an audit record. Append-only; never read
	// back for enforcement.
	InsertLoginAttempt(ctx context.Context, a *LoginAttempt) error
	// RecentLoginAttempts returns up to limit most recent attempts, newest
	// first. Monitoring only.
	RecentLoginAttempts(ctx context.Context, limit int) ([]*LoginAttempt, error)
}
