package sessioncore

import (
	"io"
	"time"

	internalaudit "github.com/tverran/sessioncore/internal/audit"
	"github.com/tverran/sessioncore/internal/rate"
	"github.com/tverran/sessioncore/store"
)

// Role is the coarse access level carried on accounts and access tokens.
type Role = store.Role

const (
	RoleAdmin    = store.RoleAdmin
	RoleOperator = store.RoleOperator
	RoleViewer   = store.RoleViewer
	RoleUser     = store.RoleUser
)

// Tier selects which rate limit quota applies to a request.
type Tier = rate.Tier

const (
	TierAnonymous     = rate.TierAnonymous
	TierAuthenticated = rate.TierAuthenticated
	TierElevated      = rate.TierElevated
)

// TokenPair is the access + refresh token pair issued on login and refresh.
// The refresh token is opaque; only its digest is stored server side.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// UserSummary is the caller-safe projection of an account. It never carries
// the password hash.
type UserSummary struct {
	ID          string
	Email       string
	Role        Role
	Permissions []string
	Active      bool
	Verified    bool
	CreatedAt   time.Time
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	User   UserSummary
	Tokens TokenPair
}

// AuthResult is returned by [Engine.Authorize]. It contains the verified
// token's subject, role and permission list.
type AuthResult struct {
	UserID      string
	Email       string
	Role        Role
	Permissions []string
	ExpiresAt   time.Time
}

// CreateAccountRequest is the input for [Engine.CreateAccount]. Email and
// Password are required; Role defaults to [Config.Account.DefaultRole]
// when empty.
type CreateAccountRequest struct {
	Email       string
	Password    string
	Role        string
	Permissions []string
}

// CreateAccountResult is returned by [Engine.CreateAccount]. Tokens is
// non-nil only when AutoLogin is enabled.
type CreateAccountResult struct {
	UserID string
	Role   Role
	Tokens *TokenPair
}

// SecurityPosture is a read-only snapshot of the engine's active security
// configuration, returned by [Engine.SecurityPosture].
type SecurityPosture struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	Argon2             PasswordConfigReport
	LockoutThreshold   int
	LockoutDuration    time.Duration
	RateLimitingActive bool
	RateLimitTracked   int
	AuditingActive     bool
	AuditDropped       uint64
	StoreTimeout       time.Duration
}

// PasswordConfigReport contains the Argon2 parameters active in the engine.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewMultiSink fans events out to several sinks in order.
func NewMultiSink(sinks ...AuditSink) AuditSink {
	return internalaudit.NewMultiSink(sinks...)
}
