package sessioncore

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors [Config] with TOML-friendly field types. Durations are
// strings in Go syntax ("5m", "72h"); signing keys come from inline values
// or referenced files.
type fileConfig struct {
	Token     fileTokenConfig     `toml:"token"`
	Password  filePasswordConfig  `toml:"password"`
	Lockout   fileLockoutConfig   `toml:"lockout"`
	RateLimit fileRateLimitConfig `toml:"rate_limit"`
	Store     fileStoreConfig     `toml:"store"`
	Account   fileAccountConfig   `toml:"account"`
	Audit     fileAuditConfig     `toml:"audit"`
	Metrics   fileMetricsConfig   `toml:"metrics"`
}

type fileTokenConfig struct {
	AccessTTL      string `toml:"access_ttl"`
	RefreshTTL     string `toml:"refresh_ttl"`
	SigningMethod  string `toml:"signing_method"`
	Secret         string `toml:"secret"`
	SecretFile     string `toml:"secret_file"`
	PublicKeyFile  string `toml:"public_key_file"`
	PrivateKeyFile string `toml:"private_key_file"`
	Issuer         string `toml:"issuer"`
	Audience       string `toml:"audience"`
	Leeway         string `toml:"leeway"`
	KeyID          string `toml:"key_id"`
}

type filePasswordConfig struct {
	Memory            uint32 `toml:"memory_kb"`
	Time              uint32 `toml:"time_cost"`
	Parallelism       uint8  `toml:"parallelism"`
	SaltLength        uint32 `toml:"salt_length"`
	KeyLength         uint32 `toml:"key_length"`
	MaxPasswordBytes  int    `toml:"max_password_bytes"`
	MinPasswordLength int    `toml:"min_password_length"`
	UpgradeOnLogin    *bool  `toml:"upgrade_on_login"`
}

type fileLockoutConfig struct {
	Threshold int    `toml:"threshold"`
	Duration  string `toml:"duration"`
}

type fileRateLimitConfig struct {
	Enabled       bool   `toml:"enabled"`
	Anonymous     string `toml:"anonymous"`
	Authenticated string `toml:"authenticated"`
	Elevated      string `toml:"elevated"`
	SweepInterval string `toml:"sweep_interval"`
}

type fileStoreConfig struct {
	KeyPrefix     string `toml:"key_prefix"`
	Timeout       string `toml:"timeout"`
	AttemptLogCap int    `toml:"attempt_log_cap"`
	SweepInterval string `toml:"sweep_interval"`
}

type fileAccountConfig struct {
	Enabled     *bool  `toml:"enabled"`
	DefaultRole string `toml:"default_role"`
	AutoLogin   bool   `toml:"auto_login"`
}

type fileAuditConfig struct {
	Enabled    bool  `toml:"enabled"`
	BufferSize int   `toml:"buffer_size"`
	DropIfFull *bool `toml:"drop_if_full"`
}

type fileMetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"latency_histograms"`
}

// LoadConfigFile reads a TOML file and overlays it on [defaultConfig].
// Unset fields keep their defaults; the merged result is validated by
// [Builder.Build], not here.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return parseConfigTOML(raw)
}

func parseConfigTOML(raw []byte) (Config, error) {
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := defaultConfig()

	if err := overlayDuration(&cfg.Token.AccessTTL, fc.Token.AccessTTL, "token.access_ttl"); err != nil {
		return Config{}, err
	}
	if err := overlayDuration(&cfg.Token.RefreshTTL, fc.Token.RefreshTTL, "token.refresh_ttl"); err != nil {
		return Config{}, err
	}
	if err := overlayDuration(&cfg.Token.Leeway, fc.Token.Leeway, "token.leeway"); err != nil {
		return Config{}, err
	}
	if fc.Token.SigningMethod != "" {
		cfg.Token.SigningMethod = strings.ToLower(fc.Token.SigningMethod)
	}
	cfg.Token.Issuer = pick(fc.Token.Issuer, cfg.Token.Issuer)
	cfg.Token.Audience = pick(fc.Token.Audience, cfg.Token.Audience)
	cfg.Token.KeyID = pick(fc.Token.KeyID, cfg.Token.KeyID)

	key, err := loadSecret(fc.Token.Secret, firstNonEmpty(fc.Token.SecretFile, fc.Token.PrivateKeyFile))
	if err != nil {
		return Config{}, fmt.Errorf("token signing key: %w", err)
	}
	if key != nil {
		cfg.Token.PrivateKey = key
	}
	if fc.Token.PublicKeyFile != "" {
		pub, err := os.ReadFile(fc.Token.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("token public key: %w", err)
		}
		cfg.Token.PublicKey = trimKey(pub)
	}

	if fc.Password.Memory > 0 {
		cfg.Password.Memory = fc.Password.Memory
	}
	if fc.Password.Time > 0 {
		cfg.Password.Time = fc.Password.Time
	}
	if fc.Password.Parallelism > 0 {
		cfg.Password.Parallelism = fc.Password.Parallelism
	}
	if fc.Password.SaltLength > 0 {
		cfg.Password.SaltLength = fc.Password.SaltLength
	}
	if fc.Password.KeyLength > 0 {
		cfg.Password.KeyLength = fc.Password.KeyLength
	}
	if fc.Password.MaxPasswordBytes > 0 {
		cfg.Password.MaxPasswordBytes = fc.Password.MaxPasswordBytes
	}
	if fc.Password.MinPasswordLength > 0 {
		cfg.Password.MinPasswordLength = fc.Password.MinPasswordLength
	}
	if fc.Password.UpgradeOnLogin != nil {
		cfg.Password.UpgradeOnLogin = *fc.Password.UpgradeOnLogin
	}

	if fc.Lockout.Threshold > 0 {
		cfg.Lockout.Threshold = fc.Lockout.Threshold
	}
	if err := overlayDuration(&cfg.Lockout.Duration, fc.Lockout.Duration, "lockout.duration"); err != nil {
		return Config{}, err
	}

	cfg.RateLimit.Enabled = fc.RateLimit.Enabled
	cfg.RateLimit.Anonymous = pick(fc.RateLimit.Anonymous, cfg.RateLimit.Anonymous)
	cfg.RateLimit.Authenticated = pick(fc.RateLimit.Authenticated, cfg.RateLimit.Authenticated)
	cfg.RateLimit.Elevated = pick(fc.RateLimit.Elevated, cfg.RateLimit.Elevated)
	if err := overlayDuration(&cfg.RateLimit.SweepInterval, fc.RateLimit.SweepInterval, "rate_limit.sweep_interval"); err != nil {
		return Config{}, err
	}

	cfg.Store.KeyPrefix = pick(fc.Store.KeyPrefix, cfg.Store.KeyPrefix)
	if err := overlayDuration(&cfg.Store.Timeout, fc.Store.Timeout, "store.timeout"); err != nil {
		return Config{}, err
	}
	if fc.Store.AttemptLogCap > 0 {
		cfg.Store.AttemptLogCap = fc.Store.AttemptLogCap
	}
	if err := overlayDuration(&cfg.Store.SweepInterval, fc.Store.SweepInterval, "store.sweep_interval"); err != nil {
		return Config{}, err
	}

	if fc.Account.Enabled != nil {
		cfg.Account.Enabled = *fc.Account.Enabled
	}
	cfg.Account.DefaultRole = pick(fc.Account.DefaultRole, cfg.Account.DefaultRole)
	cfg.Account.AutoLogin = fc.Account.AutoLogin

	cfg.Audit.Enabled = fc.Audit.Enabled
	if fc.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = fc.Audit.BufferSize
	}
	if fc.Audit.DropIfFull != nil {
		cfg.Audit.DropIfFull = *fc.Audit.DropIfFull
	}

	cfg.Metrics.Enabled = fc.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = fc.Metrics.EnableLatencyHistograms

	return cfg, nil
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// loadSecret resolves an inline secret or a file reference; the inline
// value wins when both are set.
func loadSecret(inline, file string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if file == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return trimKey(raw), nil
}

func trimKey(raw []byte) []byte {
	return []byte(strings.TrimSpace(string(raw)))
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
