package sessioncore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B) (*Engine, func()) {
	b.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).Build()
	if err != nil {
		mr.Close()
		b.Fatalf("build engine: %v", err)
	}

	if _, err := engine.CreateAccount(context.Background(), CreateAccountRequest{
		Email:    testEmail,
		Password: testPassword,
	}); err != nil {
		b.Fatalf("create account: %v", err)
	}

	return engine, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func BenchmarkAuthorize(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		b.Fatalf("login: %v", err)
	}
	access := res.Tokens.AccessToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authorize(context.Background(), access); err != nil {
			b.Fatalf("authorize: %v", err)
		}
	}
}

func BenchmarkAuthorizeParallel(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		b.Fatalf("login: %v", err)
	}
	access := res.Tokens.AccessToken

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.Authorize(context.Background(), access); err != nil {
				b.Fatalf("authorize: %v", err)
			}
		}
	})
}

func BenchmarkRefresh(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		b.Fatalf("login: %v", err)
	}
	refresh := res.Tokens.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rotated, err := engine.Refresh(context.Background(), refresh)
		if err != nil {
			b.Fatalf("refresh: %v", err)
		}
		refresh = rotated.Tokens.RefreshToken
	}
}
