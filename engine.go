package sessioncore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/tverran/sessioncore/internal/audit"
	"github.com/tverran/sessioncore/internal"
	"github.com/tverran/sessioncore/internal/lockout"
	"github.com/tverran/sessioncore/internal/rate"
	"github.com/tverran/sessioncore/password"
	"github.com/tverran/sessioncore/store"
	"github.com/tverran/sessioncore/token"
)

// Engine is the session and access control core. Build one with [Builder]
// and treat it as immutable; all methods are safe for concurrent use.
type Engine struct {
	config    Config
	store     store.Store
	tokens    *token.Manager
	hasher    *password.Hasher
	guard     *lockout.Guard
	limiter   *rate.Limiter
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	decoyHash string

	sweepDone chan struct{}
	sweepWg   sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the background sweeper and drains the audit dispatcher.
// Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepDone != nil {
			close(e.sweepDone)
			e.sweepWg.Wait()
		}
		if e.limiter != nil {
			e.limiter.Close()
		}
		e.audit.Close()
	})
}

// AuditDropped reports events discarded by the audit dispatcher under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// storeCtx bounds a store call with the configured timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// mapStoreErr folds transport failures into the fail-closed sentinel.
func (e *Engine) mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		e.metrics.Inc(MetricStoreUnavailable)
		return ErrServiceUnavailable
	default:
		return err
	}
}

// CheckRateLimit admits or rejects a request for the client at the given
// tier. Rejections carry the retry hint via [RateLimitedError].
func (e *Engine) CheckRateLimit(ctx context.Context, clientID string, tier Tier) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.limiter == nil || clientID == "" {
		return nil
	}

	ok, retryAfter := e.limiter.Allow(clientID, tier)
	if ok {
		return nil
	}

	e.emitRateLimit(ctx, tier.String(), clientID, retryAfter)
	return &RateLimitedError{RetryAfter: retryAfter}
}

// Login verifies credentials and issues a token pair.
//
// Unknown email and wrong password are indistinguishable to the caller;
// both return ErrInvalidCredentials after a full-cost hash verification.
// Failed attempts advance the lockout counter only when the password was
// actually checked and wrong.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	if ip := clientIPFromContext(ctx); ip != "" {
		if err := e.CheckRateLimit(ctx, ip, TierAnonymous); err != nil {
			e.metrics.Inc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", email, "", err, nil)
			return nil, err
		}
	}

	if email == "" || plaintext == "" {
		e.failLogin(ctx, nil, email, auditErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.GetUserByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same hashing cost as a real verification so timing
			// does not reveal whether the address exists.
			_, _ = e.hasher.Verify(plaintext, e.decoyHash)
			e.failLogin(ctx, nil, email, auditErrUnknownEmail)
			return nil, ErrInvalidCredentials
		}
		return nil, e.mapStoreErr(err)
	}

	now := time.Now()
	if e.guard.IsLocked(u, now) {
		e.metrics.Inc(MetricLoginLocked)
		e.recordAttempt(ctx, email, false, string(auditErrAccountLocked))
		e.emitAudit(ctx, auditEventLoginLocked, false, u.ID, email, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(plaintext, u.PasswordHash)
	if err != nil || !ok {
		outcome, recErr := e.guard.RecordFailure(sctx, u.ID)
		if recErr != nil && !errors.Is(recErr, store.ErrNotFound) {
			return nil, e.mapStoreErr(recErr)
		}
		if outcome.LockedNow {
			e.metrics.Inc(MetricLockoutTriggered)
			e.emitAudit(ctx, auditEventLockoutTriggered, false, u.ID, email, "", ErrAccountLocked, func() map[string]string {
				return map[string]string{
					"lock_expiry": time.Unix(outcome.LockExpiry, 0).UTC().Format(time.RFC3339),
				}
			})
		}
		e.failLogin(ctx, u, email, auditErrWrongPassword)
		return nil, ErrInvalidCredentials
	}

	if !u.Active {
		e.metrics.Inc(MetricLoginFailure)
		e.recordAttempt(ctx, email, false, string(auditErrAccountDisabled))
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, email, "", ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(sctx, u, plaintext)
	}

	if err := e.guard.RecordSuccess(sctx, u.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, e.mapStoreErr(err)
	}

	pair, tokenID, err := e.issuePair(sctx, ctx, u)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.recordAttempt(ctx, email, true, "")
	e.emitAudit(ctx, auditEventLoginSuccess, true, u.ID, email, tokenID, nil, nil)

	return &LoginResult{
		User:   summarize(u),
		Tokens: pair,
	}, nil
}

// failLogin records the externally indistinguishable failure. The internal
// reason reaches only the audit log and attempt history.
func (e *Engine) failLogin(ctx context.Context, u *store.User, email string, reason AuditErrorCode) {
	e.metrics.Inc(MetricLoginFailure)
	e.recordAttempt(ctx, email, false, string(reason))

	userID := ""
	if u != nil {
		userID = u.ID
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, email, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": string(reason)}
	})
}

func (e *Engine) maybeUpgradeHash(sctx context.Context, u *store.User, plaintext string) {
	needs, err := e.hasher.NeedsRehash(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	// Best effort; the old hash still verifies if this write fails.
	if err := e.store.UpdatePasswordHash(sctx, u.ID, newHash); err == nil {
		u.PasswordHash = newHash
	}
}

// issuePair mints the access token and persists a new refresh token record.
func (e *Engine) issuePair(sctx, ctx context.Context, u *store.User) (TokenPair, string, error) {
	access, err := e.tokens.MintAccess(u.ID, u.Email, string(u.Role), u.Permissions)
	if err != nil {
		return TokenPair{}, "", err
	}

	id, err := internal.NewTokenID()
	if err != nil {
		return TokenPair{}, "", err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return TokenPair{}, "", err
	}

	now := time.Now()
	refreshExpiry := now.Add(e.config.Token.RefreshTTL)

	record := &store.RefreshToken{
		ID:        id.String(),
		UserID:    u.ID,
		Digest:    internal.HashRefreshSecret(secret),
		ExpiresAt: refreshExpiry.Unix(),
		Device:    userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		CreatedAt: now.Unix(),
	}
	if err := e.store.InsertRefreshToken(sctx, record); err != nil {
		return TokenPair{}, "", e.mapStoreErr(err)
	}

	opaque, err := internal.EncodeRefreshToken(id.String(), secret)
	if err != nil {
		return TokenPair{}, "", err
	}

	e.metrics.Inc(MetricTokenIssued)

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  now.Add(e.config.Token.AccessTTL),
		RefreshToken:     opaque,
		RefreshExpiresAt: refreshExpiry,
	}, id.String(), nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued in its place. Exactly one concurrent caller wins the
// rotation; the rest observe reuse.
//
// Presenting an already-rotated token is treated as theft of the old token:
// every live token for the user is revoked before the error returns.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	_, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}
	digest := internal.HashRefreshSecret(secret)

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	record, err := e.store.GetRefreshTokenByDigest(sctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		return nil, e.mapStoreErr(err)
	}

	now := time.Now()
	if record.Revoked {
		return nil, e.handleRefreshReuse(sctx, ctx, record)
	}
	if now.Unix() >= record.ExpiresAt {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, record.UserID, "", record.ID, ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	// The compare-and-set is the rotation point: only the caller that
	// flips revoked=false to true proceeds to mint.
	switch err := e.store.RevokeRefreshToken(sctx, digest); {
	case err == nil:
	case errors.Is(err, store.ErrAlreadyRevoked):
		return nil, e.handleRefreshReuse(sctx, ctx, record)
	case errors.Is(err, store.ErrNotFound):
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	default:
		return nil, e.mapStoreErr(err)
	}
	e.metrics.Inc(MetricTokenRevoked)

	u, err := e.store.GetUserByID(sctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrRefreshInvalid
		}
		return nil, e.mapStoreErr(err)
	}
	if !u.Active {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, u.ID, u.Email, record.ID, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}
	if e.guard.IsLocked(u, now) {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, u.ID, u.Email, record.ID, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	pair, tokenID, err := e.issuePair(sctx, ctx, u)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, u.ID, u.Email, tokenID, nil, func() map[string]string {
		return map[string]string{"rotated_from": record.ID}
	})

	return &LoginResult{
		User:   summarize(u),
		Tokens: pair,
	}, nil
}

func (e *Engine) handleRefreshReuse(sctx, ctx context.Context, record *store.RefreshToken) error {
	e.metrics.Inc(MetricRefreshReuseDetected)

	revoked, err := e.store.RevokeAllForUser(sctx, record.UserID)
	if err != nil {
		return e.mapStoreErr(err)
	}
	if revoked > 0 {
		e.metrics.Inc(MetricRevokeAll)
	}

	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, record.UserID, "", record.ID, ErrRefreshReuse, func() map[string]string {
		return map[string]string{"revoked_tokens": itoa(revoked)}
	})

	return ErrRefreshReuse
}

// Logout revokes the presented refresh token. Revoking a token that is
// already revoked or expired out of the store succeeds: the end state is
// what the caller asked for.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	switch err := e.store.RevokeRefreshToken(sctx, internal.HashRefreshSecret(secret)); {
	case err == nil:
		e.metrics.Inc(MetricTokenRevoked)
	case errors.Is(err, store.ErrAlreadyRevoked), errors.Is(err, store.ErrNotFound):
	default:
		return e.mapStoreErr(err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", "", "", nil, nil)
	return nil
}

// LogoutAll revokes every live refresh token for the user and reports how
// many were revoked.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	revoked, err := e.store.RevokeAllForUser(sctx, userID)
	if err != nil {
		return revoked, e.mapStoreErr(err)
	}

	if revoked > 0 {
		e.metrics.Inc(MetricRevokeAll)
	}
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"revoked_tokens": itoa(revoked)}
	})

	return revoked, nil
}

// Authorize verifies the access token and checks that every required
// permission is present. Verification is purely cryptographic; no store
// round trip occurs.
func (e *Engine) Authorize(ctx context.Context, accessToken string, requiredPerms ...string) (*AuthResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}()

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		e.metrics.Inc(MetricAuthorizeFailure)
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}

	result := &AuthResult{
		UserID:      claims.UserID(),
		Email:       claims.Email,
		Role:        Role(claims.Role),
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	for _, required := range requiredPerms {
		if !hasPermission(result, required) {
			e.metrics.Inc(MetricAuthorizeFailure)
			e.emitAudit(ctx, auditEventAuthorizeDenied, false, result.UserID, result.Email, "", ErrPermissionDenied, func() map[string]string {
				return map[string]string{"required": required}
			})
			return nil, ErrPermissionDenied
		}
	}

	e.metrics.Inc(MetricAuthorizeSuccess)
	return result, nil
}

// hasPermission checks the token's permission list. Admin role implies
// every permission.
func hasPermission(r *AuthResult, permission string) bool {
	if r.Role == RoleAdmin {
		return true
	}
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (e *Engine) recordAttempt(ctx context.Context, email string, success bool, reason string) {
	sctx, cancel := e.storeCtx(context.WithoutCancel(ctx))
	defer cancel()

	attempt := &store.LoginAttempt{
		ID:        uuid.NewString(),
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Reason:    reason,
		At:        time.Now().Unix(),
	}
	// Attempt history is advisory; a write failure never blocks login.
	_ = e.store.InsertLoginAttempt(sctx, attempt)
}

func summarize(u *store.User) UserSummary {
	return UserSummary{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: append([]string(nil), u.Permissions...),
		Active:      u.Active,
		Verified:    u.Verified,
		CreatedAt:   time.Unix(u.CreatedAt, 0),
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
