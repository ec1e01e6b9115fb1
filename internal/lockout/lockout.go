// Package lockout enforces the failed-login threshold policy on top of the
// account store's atomic counter operations.
//
// The store owns the increment-and-compare step so concurrent failures never
// lose an increment; this package owns the policy numbers and the decision
// surface the engine calls.
package lockout

import (
	"context"
	"time"

	"github.com/tverran/sessioncore/store"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

// Accounts is the slice of the account store the guard needs.
type Accounts interface {
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration) (store.FailureOutcome, error)
	RecordLoginSuccess(ctx context.Context, userID string) error
	ClearLockout(ctx context.Context, userID string) error
}

// Config holds the lockout policy numbers.
type Config struct {
	Threshold int
	Duration  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	return c
}

// Guard applies the lockout policy for one engine instance.
type Guard struct {
	accounts Accounts
	cfg      Config
}

func NewGuard(accounts Accounts, cfg Config) *Guard {
	return &Guard{
		accounts: accounts,
		cfg:      cfg.withDefaults(),
	}
}

// IsLocked reports whether the loaded user record is inside an active lock.
// Expired locks read as unlocked without a store write; the counters reset
// lazily on the next successful login.
func (g *Guard) IsLocked(u *store.User, now time.Time) bool {
	return u.Locked(now)
}

// RecordFailure advances the user's failure counter atomically and arms the
// lock when the threshold is reached. Must only be called after the password
// was actually verified wrong.
func (g *Guard) RecordFailure(ctx context.Context, userID string) (store.FailureOutcome, error) {
	return g.accounts.RecordLoginFailure(ctx, userID, g.cfg.Threshold, g.cfg.Duration)
}

// RecordSuccess clears the counter and any lock after a verified login.
func (g *Guard) RecordSuccess(ctx context.Context, userID string) error {
	return g.accounts.RecordLoginSuccess(ctx, userID)
}

// Reset clears the counter and lock without a login, for operator unlocks.
func (g *Guard) Reset(ctx context.Context, userID string) error {
	return g.accounts.ClearLockout(ctx, userID)
}

// Threshold exposes the effective policy for posture reporting.
func (g *Guard) Threshold() int { return g.cfg.Threshold }

// Duration exposes the effective lock duration for posture reporting.
func (g *Guard) Duration() time.Duration { return g.cfg.Duration }
