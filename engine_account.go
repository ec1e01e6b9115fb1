package sessioncore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tverran/sessioncore/store"
)

// CreateAccount registers a new account. The password is policy-checked and
// hashed before any store write. When AutoLogin is configured the result
// carries a freshly issued token pair.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Account.Enabled {
		return nil, ErrAccountInvalid
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !validEmail(email) {
		e.emitAudit(ctx, auditEventAccountCreateFailed, false, "", email, "", ErrAccountInvalid, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return nil, ErrAccountInvalid
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		e.emitAudit(ctx, auditEventAccountCreateFailed, false, "", email, "", err, nil)
		return nil, err
	}

	role := store.Role(req.Role)
	if req.Role == "" {
		role = store.Role(e.config.Account.DefaultRole)
	}
	if !role.Valid() {
		e.emitAudit(ctx, auditEventAccountCreateFailed, false, "", email, "", ErrRoleInvalid, func() map[string]string {
			return map[string]string{"role": req.Role}
		})
		return nil, ErrRoleInvalid
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Permissions:  append([]string(nil), req.Permissions...),
		Active:       true,
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.store.CreateUser(sctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			e.emitAudit(ctx, auditEventAccountCreateFailed, false, "", email, "", ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		return nil, e.mapStoreErr(err)
	}

	e.metrics.Inc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, u.ID, email, "", nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})

	result := &CreateAccountResult{
		UserID: u.ID,
		Role:   role,
	}

	if e.config.Account.AutoLogin {
		pair, tokenID, err := e.issuePair(sctx, ctx, u)
		if err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, u.ID, email, tokenID, nil, func() map[string]string {
			return map[string]string{"reason": "auto_login"}
		})
		result.Tokens = &pair
	}

	return result, nil
}

// ChangePassword replaces the account password after verifying the current
// one. Every outstanding refresh token is revoked so stolen sessions do not
// outlive the credential they were minted under.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.GetUserByID(sctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return e.mapStoreErr(err)
	}

	ok, err := e.hasher.Verify(current, u.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventPasswordChangeFailed, false, userID, u.Email, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.checkPasswordPolicy(next); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailed, false, userID, u.Email, "", err, nil)
		return err
	}
	if same, err := e.hasher.Verify(next, u.PasswordHash); err == nil && same {
		e.emitAudit(ctx, auditEventPasswordChangeFailed, false, userID, u.Email, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := e.store.UpdatePasswordHash(sctx, userID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return e.mapStoreErr(err)
	}

	revoked, err := e.store.RevokeAllForUser(sctx, userID)
	if err != nil {
		return e.mapStoreErr(err)
	}
	if revoked > 0 {
		e.metrics.Inc(MetricRevokeAll)
	}

	e.metrics.Inc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, userID, u.Email, "", nil, func() map[string]string {
		return map[string]string{"revoked_tokens": itoa(revoked)}
	})

	return nil
}

// UnlockAccount clears the lockout state without waiting for expiry.
// Administrative operation; the failure counter restarts at zero.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.guard.Reset(sctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return e.mapStoreErr(err)
	}

	e.metrics.Inc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, userID, "", "", nil, nil)
	return nil
}

// SetAccountActive enables or disables an account. Disabling revokes all
// outstanding refresh tokens so the account stops authenticating at once.
func (e *Engine) SetAccountActive(ctx context.Context, userID string, active bool) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.store.SetUserActive(sctx, userID, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return e.mapStoreErr(err)
	}

	revoked := 0
	if !active {
		n, err := e.store.RevokeAllForUser(sctx, userID)
		if err != nil {
			return e.mapStoreErr(err)
		}
		revoked = n
		e.metrics.Inc(MetricAccountDisabled)
		if n > 0 {
			e.metrics.Inc(MetricRevokeAll)
		}
	}

	e.emitAudit(ctx, auditEventAccountStatusChange, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"active":         encodeBoolMeta(active),
			"revoked_tokens": itoa(revoked),
		}
	})

	return nil
}

// User loads the caller-safe projection of an account.
func (e *Engine) User(ctx context.Context, userID string) (*UserSummary, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.GetUserByID(sctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, e.mapStoreErr(err)
	}

	summary := summarize(u)
	return &summary, nil
}

// RecentLoginAttempts returns up to limit attempt records, newest first.
func (e *Engine) RecentLoginAttempts(ctx context.Context, limit int) ([]*store.LoginAttempt, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	attempts, err := e.store.RecentLoginAttempts(sctx, limit)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	return attempts, nil
}

// SecurityPosture reports the engine's active security configuration and
// live counters for operational review.
func (e *Engine) SecurityPosture() SecurityPosture {
	if e == nil {
		return SecurityPosture{}
	}

	posture := SecurityPosture{
		SigningAlgorithm: e.config.Token.SigningMethod,
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Token.RefreshTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LockoutThreshold: e.guard.Threshold(),
		LockoutDuration:  e.guard.Duration(),
		AuditingActive:   e.config.Audit.Enabled,
		AuditDropped:     e.audit.Dropped(),
		StoreTimeout:     e.config.Store.Timeout,
	}

	if e.limiter != nil {
		posture.RateLimitingActive = true
		posture.RateLimitTracked = e.limiter.Tracked()
	}

	return posture
}

func (e *Engine) checkPasswordPolicy(plaintext string) error {
	if plaintext == "" {
		return ErrPasswordPolicy
	}
	if min := e.config.Password.MinPasswordLength; min > 0 && len(plaintext) < min {
		return ErrPasswordPolicy
	}
	if max := e.config.Password.MaxPasswordBytes; max > 0 && len(plaintext) > max {
		return ErrPasswordPolicy
	}
	return nil
}

// validEmail applies a structural check only. Real validation is delivery.
func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

func encodeBoolMeta(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
