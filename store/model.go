package store

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Role is the authorization role carried by a [User].
type Role string

const (
	// RoleAdmin grants full administrative access.
	RoleAdmin Role = "admin"
	// RoleOperator grants operational (non-admin) write access.
	RoleOperator Role = "operator"
	// RoleViewer grants read-only access.
	RoleViewer Role = "viewer"
	// RoleUser is the default role for self-registered accounts.
	RoleUser Role = "user"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer, RoleUser:
		return true
	}
	return false
}

// User is the identity and authorization record. Timestamps are Unix
// seconds; zero means unset (LockExpiry zero means not locked).
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	Role           Role
	Permissions    []string
	Active         bool
	Verified       bool
	FailedAttempts int
	LockExpiry     int64
	LastLoginAt    int64
	CreatedAt      int64
	UpdatedAt      int64
}

// Locked reports whether the account lock is in effect at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockExpiry != 0 && now.Unix() < u.LockExpiry
}

// RefreshToken is a persisted refresh-token row. Only the SHA-256 digest of
// the opaque secret is stored; the plaintext exists transiently in the
// issuing call.
type RefreshToken struct {
	ID        string
	UserID    string
	Digest    [32]byte
	ExpiresAt int64
	Revoked   bool
	RevokedAt int64
	Device    string
	IP        string
	CreatedAt int64
}

// Valid reports whether the token is usable at now: not revoked and not
// past expiry.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && now.Unix() < t.ExpiresAt
}

// LoginAttempt is an append-only audit record of one login outcome. It is
// never read back for enforcement.
type LoginAttempt struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
	At        int64  `json:"at"`
}

// FailureOutcome reports the result of the atomic failed-attempt increment.
type FailureOutcome struct {
	Attempts      int
	LockedNow     bool
	AlreadyLocked bool
	LockExpiry    int64
}

const (
	fieldID             = "id"
	fieldEmail          = "email"
	fieldPasswordHash   = "password_hash"
	fieldRole           = "role"
	fieldPermissions    = "permissions"
	fieldActive         = "active"
	fieldVerified       = "verified"
	fieldFailedAttempts = "failed_attempts"
	fieldLockExpiry     = "lock_expiry"
	fieldLastLogin      = "last_login"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"

	fieldUserID    = "user_id"
	fieldDigest    = "digest"
	fieldExpiresAt = "expires_at"
	fieldRevoked   = "revoked"
	fieldRevokedAt = "revoked_at"
	fieldDevice    = "device"
	fieldIP        = "ip"
)

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func userFields(u *User) []any {
	perms, _ := json.Marshal(u.Permissions)
	return []any{
		fieldID, u.ID,
		fieldEmail, u.Email,
		fieldPasswordHash, u.PasswordHash,
		fieldRole, string(u.Role),
		fieldPermissions, string(perms),
		fieldActive, encodeBool(u.Active),
		fieldVerified, encodeBool(u.Verified),
		fieldFailedAttempts, strconv.Itoa(u.FailedAttempts),
		fieldLockExpiry, strconv.FormatInt(u.LockExpiry, 10),
		fieldLastLogin, strconv.FormatInt(u.LastLoginAt, 10),
		fieldCreatedAt, strconv.FormatInt(u.CreatedAt, 10),
		fieldUpdatedAt, strconv.FormatInt(u.UpdatedAt, 10),
	}
}

func userFromMap(m map[string]string) (*User, error) {
	if m[fieldID] == "" || m[fieldEmail] == "" {
		return nil, ErrCorruptRecord
	}

	u := &User{
		ID:           m[fieldID],
		Email:        m[fieldEmail],
		PasswordHash: m[fieldPasswordHash],
		Role:         Role(m[fieldRole]),
		Active:       m[fieldActive] == "1",
		Verified:     m[fieldVerified] == "1",
	}

	if raw := m[fieldPermissions]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &u.Permissions); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	var err error
	if u.FailedAttempts, err = decodeInt(m[fieldFailedAttempts]); err != nil {
		return nil, ErrCorruptRecord
	}
	if u.LockExpiry, err = decodeInt64(m[fieldLockExpiry]); err != nil {
		return nil, ErrCorruptRecord
	}
	if u.LastLoginAt, err = decodeInt64(m[fieldLastLogin]); err != nil {
		return nil, ErrCorruptRecord
	}
	if u.CreatedAt, err = decodeInt64(m[fieldCreatedAt]); err != nil {
		return nil, ErrCorruptRecord
	}
	if u.UpdatedAt, err = decodeInt64(m[fieldUpdatedAt]); err != nil {
		return nil, ErrCorruptRecord
	}

	return u, nil
}

func tokenFields(t *RefreshToken) []any {
	return []any{
		fieldID, t.ID,
		fieldUserID, t.UserID,
		fieldDigest, hex.EncodeToString(t.Digest[:]),
		fieldExpiresAt, strconv.FormatInt(t.ExpiresAt, 10),
		fieldRevoked, encodeBool(t.Revoked),
		fieldRevokedAt, strconv.FormatInt(t.RevokedAt, 10),
		fieldDevice, t.Device,
		fieldIP, t.IP,
		fieldCreatedAt, strconv.FormatInt(t.CreatedAt, 10),
	}
}

func tokenFromMap(m map[string]string) (*RefreshToken, error) {
	if m[fieldID] == "" || m[fieldUserID] == "" {
		return nil, ErrCorruptRecord
	}

	t := &RefreshToken{
		ID:      m[fieldID],
		UserID:  m[fieldUserID],
		Revoked: m[fieldRevoked] == "1",
		Device:  m[fieldDevice],
		IP:      m[fieldIP],
	}

	raw, err := hex.DecodeString(m[fieldDigest])
	if err != nil || len(raw) != len(t.Digest) {
		return nil, ErrCorruptRecord
	}
	copy(t.Digest[:], raw)

	if t.ExpiresAt, err = decodeInt64(m[fieldExpiresAt]); err != nil {
		return nil, ErrCorruptRecord
	}
	if t.RevokedAt, err = decodeInt64(m[fieldRevokedAt]); err != nil {
		return nil, ErrCorruptRecord
	}
	if t.CreatedAt, err = decodeInt64(m[fieldCreatedAt]); err != nil {
		return nil, ErrCorruptRecord
	}

	return t, nil
}

func decodeInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func decodeInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
