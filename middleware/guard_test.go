package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	sessioncore "github.com/tverran/sessioncore"
)

const (
	testEmail    = "user@example.com"
	testPassword = "correct-horse-battery"
)

func newTestEngine(t *testing.T, role sessioncore.Role, permissions []string) (*sessioncore.Engine, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := sessioncore.DefaultConfig()
	cfg.Token.PrivateKey = []byte("unit-test-secret-unit-test-secret")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Anonymous = "2/1m"
	cfg.RateLimit.Authenticated = "100/1m"
	cfg.RateLimit.Elevated = "500/1m"
	cfg.Store.SweepInterval = 0

	engine, err := sessioncore.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		mr.Close()
		t.Fatalf("build engine: %v", err)
	}

	if _, err := engine.CreateAccount(context.Background(), sessioncore.CreateAccountRequest{
		Email:       testEmail,
		Password:    testPassword,
		Role:        string(role),
		Permissions: permissions,
	}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	return engine, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func loginToken(t *testing.T, engine *sessioncore.Engine) string {
	t.Helper()
	res, err := engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res.Tokens.AccessToken
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthAcceptsValidBearer(t *testing.T) {
	engine, done := newTestEngine(t, sessioncore.RoleViewer, []string{"sessions:read"})
	defer done()
	access := loginToken(t, engine)

	var captured *sessioncore.AuthResult
	handler := RequireAuth(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = AuthResultFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured == nil || captured.Email != testEmail {
		t.Fatalf("auth result not injected: %+v", captured)
	}
}

func TestRequireAuthRejectsMissingOrBadTokens(t *testing.T) {
	engine, done := newTestEngine(t, sessioncore.RoleViewer, nil)
	defer done()

	handler := RequireAuth(engine)(okHandler())

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireAuthPermissionForbidden(t *testing.T) {
	engine, done := newTestEngine(t, sessioncore.RoleViewer, []string{"sessions:read"})
	defer done()
	access := loginToken(t, engine)

	handler := RequireAuth(engine, "sessions:write")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	engine, done := newTestEngine(t, sessioncore.RoleViewer, nil)
	defer done()
	access := loginToken(t, engine)

	forbidden := RequireRole(engine, sessioncore.RoleOperator)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	forbidden.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer hitting operator route: %d, want 403", rec.Code)
	}

	allowed := RequireRole(engine, sessioncore.RoleViewer)(okHandler())
	rec = httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer hitting viewer route: %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	engine, done := newTestEngine(t, sessioncore.RoleViewer, nil)
	defer done()

	handler := RateLimit(engine, sessioncore.TierAnonymous)(okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("198.51.100.1:40000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d, want 200", i, rec.Code)
		}
	}

	rec := send("198.51.100.1:40000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}

	// Another source address has its own budget.
	if rec := send("198.51.100.2:40000"); rec.Code != http.StatusOK {
		t.Fatalf("second client: %d, want 200", rec.Code)
	}
}

func TestClientIPResolutionOrder(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:1234"

	if got := clientIP(req); got != "192.0.2.9" {
		t.Fatalf("socket fallback = %q", got)
	}

	req.Header.Set("X-Real-IP", "203.0.113.5")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Fatalf("x-real-ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := clientIP(req); got != "198.51.100.7" {
		t.Fatalf("leftmost forwarded hop = %q", got)
	}
}
