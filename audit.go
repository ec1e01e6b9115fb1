package sessioncore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventLoginLocked          = "login_locked"
	auditEventLockoutTriggered     = "lockout_triggered"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventAccountCreated       = "account_created"
	auditEventAccountCreateFailed  = "account_create_failed"
	auditEventAccountStatusChange  = "account_status_change"
	auditEventAccountUnlocked      = "account_unlocked"
	auditEventPasswordChanged      = "password_changed"
	auditEventPasswordChangeFailed = "password_change_failed"
	auditEventAuthorizeDenied      = "authorize_denied"
)

// AuditErrorCode is the stable error label stamped on audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUnknownEmail       AuditErrorCode = "unknown_email"
	auditErrWrongPassword      AuditErrorCode = "wrong_password"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, clientID string, retryAfter time.Duration) {
	e.metrics.Inc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope":       scope,
			"client_id":   clientID,
			"retry_after": retryAfter.String(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountDisabled
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrServiceUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
