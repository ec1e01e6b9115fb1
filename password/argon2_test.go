package password

import (
	"strings"
	"testing"
)

func secureConfig() Config {
	return Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestNeedsRehash(t *testing.T) {
	oldHasher, err := NewHasher(Config{
		Memory:      32768,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher(old) error: %v", err)
	}

	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	newHasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher(new) error: %v", err)
	}

	needsRehash, err := newHasher.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if !needsRehash {
		t.Fatal("expected NeedsRehash to return true for weaker hash parameters")
	}
}

func TestNeedsRehashSameConfig(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("same-config-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	needsRehash, err := hasher.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if needsRehash {
		t.Fatal("expected NeedsRehash to return false for current parameters")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if _, err := hasher.Verify("password", "not-a-phc-hash"); err == nil {
		t.Fatal("expected malformed hash verification to fail")
	}
}

func TestVerifyWrongVersion(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	wrongVersion := strings.Replace(hash, "$v=19$", "$v=18$", 1)
	if _, err := hasher.Verify("version-test", wrongVersion); err == nil {
		t.Fatal("expected unsupported version verification to fail")
	}
}

func TestHashShortPasswordRejected(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	for _, pwd := range []string{"", "short"} {
		if _, err := hasher.Hash(pwd); err == nil {
			t.Fatalf("expected %q to be rejected", pwd)
		}
	}
}

func TestMaxPasswordBytes(t *testing.T) {
	cfg := secureConfig()
	cfg.MaxPasswordBytes = 64
	hasher, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if _, err := hasher.Hash(strings.Repeat("a", 65)); err == nil {
		t.Fatal("expected over-max password to be rejected by Hash")
	}

	exactPwd := strings.Repeat("b", 64)
	hash, err := hasher.Hash(exactPwd)
	if err != nil {
		t.Fatalf("expected exactly-max password to be accepted: %v", err)
	}
	ok, err := hasher.Verify(exactPwd, hash)
	if err != nil || !ok {
		t.Fatalf("Verify failed for max-length password: ok=%v err=%v", ok, err)
	}

	if _, err := hasher.Verify(strings.Repeat("c", 65), hash); err == nil {
		t.Fatal("expected over-max password to be rejected by Verify")
	}
}

func TestConfigValidation(t *testing.T) {
	bad := []Config{
		{Memory: 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 0, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 2, SaltLength: 8, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range bad {
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("config %d: expected validation error", i)
		}
	}
}
