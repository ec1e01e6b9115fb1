package sessioncore

import (
	"errors"
	"time"

	"github.com/tverran/sessioncore/internal/rate"
)

// Config is the engine configuration, grouped by concern. Zero values are
// filled from [DefaultConfig] by the Builder; Validate runs at Build time.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Account   AccountConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// TokenConfig covers access token signing and refresh token lifetime.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// PasswordConfig carries Argon2id cost parameters.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	// MinPasswordLength rejects new passwords shorter than this many bytes
	// at account creation and password change. Zero disables the check.
	MinPasswordLength int
	// UpgradeOnLogin re-hashes with current parameters after a successful
	// login when the stored hash is weaker.
	UpgradeOnLogin bool
}

// LockoutConfig sets the failed-login threshold policy.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// RateLimitConfig sets the per-tier request quotas. All three quotas must
// share one window; only the limits differ.
type RateLimitConfig struct {
	Enabled       bool
	Anonymous     string
	Authenticated string
	Elevated      string
	SweepInterval time.Duration
}

// StoreConfig tunes the Redis-backed store.
type StoreConfig struct {
	KeyPrefix string
	// Timeout bounds every store call. On expiry the engine fails closed
	// with ErrServiceUnavailable.
	Timeout time.Duration
	// AttemptLogCap bounds the retained login-attempt log.
	AttemptLogCap int
	// SweepInterval is how often expired refresh tokens are purged.
	// Zero disables the background sweeper.
	SweepInterval time.Duration
}

// AccountConfig controls account creation behavior.
type AccountConfig struct {
	Enabled     bool
	DefaultRole string
	// AutoLogin issues a token pair straight from CreateAccount.
	AutoLogin bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls counter and histogram collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Callers must still
// supply signing key material before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Memory:            65536,
			Time:              3,
			Parallelism:       2,
			SaltLength:        16,
			KeyLength:         32,
			MinPasswordLength: 10,
			UpgradeOnLogin:    true,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Anonymous:     "20/1m",
			Authenticated: "120/1m",
			Elevated:      "600/1m",
			SweepInterval: time.Minute,
		},
		Store: StoreConfig{
			KeyPrefix:     "sc",
			Timeout:       2 * time.Second,
			AttemptLogCap: 10000,
			SweepInterval: 5 * time.Minute,
		},
		Account: AccountConfig{
			Enabled:     true,
			DefaultRole: string(RoleUser),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if len(cfg.Token.VerifyKeys) > 0 {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks cross-field constraints before the engine is built.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must exceed AccessTTL")
	}

	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 && len(c.Token.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return errors.New("unsupported token signing method")
	}

	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	if c.RateLimit.Enabled {
		rc := rate.Config{
			Anonymous:     c.RateLimit.Anonymous,
			Authenticated: c.RateLimit.Authenticated,
			Elevated:      c.RateLimit.Elevated,
		}
		if err := rc.Validate(); err != nil {
			return err
		}
	}

	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}
	if c.Store.KeyPrefix == "" {
		return errors.New("Store KeyPrefix must not be empty")
	}

	if c.Account.DefaultRole != "" && !Role(c.Account.DefaultRole).Valid() {
		return errors.New("Account DefaultRole is not a known role")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when auditing is enabled")
	}

	return nil
}
