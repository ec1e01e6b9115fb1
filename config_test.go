package sessioncore

import (
	"testing"
	"time"
)

func TestDefaultConfigValidatesWithKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte(testSecret)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"zero refresh ttl", func(c *Config) { c.Token.RefreshTTL = 0 }},
		{"refresh not exceeding access", func(c *Config) { c.Token.RefreshTTL = c.Token.AccessTTL }},
		{"hs256 without key", func(c *Config) { c.Token.PrivateKey = nil }},
		{"unknown signing method", func(c *Config) { c.Token.SigningMethod = "rs256" }},
		{"ed25519 without keys", func(c *Config) {
			c.Token.SigningMethod = "ed25519"
			c.Token.PrivateKey = nil
		}},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }},
		{"zero lockout duration", func(c *Config) { c.Lockout.Duration = 0 }},
		{"bad anonymous quota", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Anonymous = "twenty per minute"
		}},
		{"mismatched quota windows", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Anonymous = "20/1m"
			c.RateLimit.Authenticated = "120/5m"
		}},
		{"zero store timeout", func(c *Config) { c.Store.Timeout = 0 }},
		{"empty key prefix", func(c *Config) { c.Store.KeyPrefix = "" }},
		{"unknown default role", func(c *Config) { c.Account.DefaultRole = "root" }},
		{"audit enabled without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Token.PrivateKey = []byte(testSecret)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte(testSecret)
	cfg.Token.VerifyKeys = map[string][]byte{"k1": []byte(testSecret)}

	clone := cloneConfig(cfg)
	cfg.Token.PrivateKey[0] = 'X'
	cfg.Token.VerifyKeys["k1"][0] = 'X'

	if clone.Token.PrivateKey[0] == 'X' {
		t.Fatal("private key not deep-copied")
	}
	if clone.Token.VerifyKeys["k1"][0] == 'X' {
		t.Fatal("verify keys not deep-copied")
	}
}

func TestBuilderRejectsReuseAndMissingStore(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("build without store or redis should fail")
	}

	e, _, done := newEngineTest(t, nil)
	defer done()
	_ = e

	b := New().WithConfig(testConfig())
	b.built = true
	if _, err := b.Build(); err == nil {
		t.Fatal("second build should fail")
	}
}

func TestBuilderConfigCloned(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)

	// Caller mutation after WithConfig must not leak into the builder.
	cfg.Lockout.Threshold = 99
	if b.config.Lockout.Threshold == 99 {
		t.Fatal("builder should hold a cloned config")
	}
	if b.config.Lockout.Duration != 30*time.Minute {
		t.Fatalf("unexpected lockout duration %v", b.config.Lockout.Duration)
	}
}
