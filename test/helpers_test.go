package test

import (
	"context"
	"testing"

	sessioncore "github.com/tverran/sessioncore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testEmail    = "user@example.com"
	testPassword = "correct-horse-battery"
)

func newPublicEngine(t *testing.T) (*sessioncore.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := sessioncore.DefaultConfig()
	cfg.Token.PrivateKey = []byte("unit-test-secret-unit-test-secret")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = false
	cfg.Store.SweepInterval = 0

	engine, err := sessioncore.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		mr.Close()
		t.Fatalf("build engine: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func seedAccount(t *testing.T, engine *sessioncore.Engine, permissions ...string) string {
	t.Helper()
	result, err := engine.CreateAccount(context.Background(), sessioncore.CreateAccountRequest{
		Email:       testEmail,
		Password:    testPassword,
		Permissions: permissions,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return result.UserID
}
