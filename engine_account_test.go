package sessioncore

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAccountAssignsDefaults(t *testing.T) {
	e, _, done := newEngineTest(t, nil)
	defer done()
	ctx := context.Background()

	res, err := e.CreateAccount(ctx, CreateAccountRequest{
		Email:    "New.User@Example.COM",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.UserID == "" {
		t.Fatal("expected generated user id")
	}
	if res.Role != RoleUser {
		t.Fatalf("role = %q, want default %q", res.Role, RoleUser)
	}
	if res.Tokens != nil {
		t.Fatal("tokens should not be issued without AutoLogin")
	}

	// Email was normalized; login accepts the canonical form.
	if _, err := e.Login(ctx, "new.user@example.com", testPassword); err != nil {
		t.Fatalf("login with normalized email: %v", err)
	}
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	e, _, done := newEngineTest(t, nil)
	defer done()
	ctx := context.Background()

	mustCreateAccount(t, e, testEmail, testPassword)

	_, err := e.CreateAccount(ctx, CreateAccountRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("got %v, want ErrAccountExists", err)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	e, _, done := newEngineTest(t, nil)
	defer done()
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateAccountRequest
		want error
	}{
		{"empty email", CreateAccountRequest{Email: "", Password: testPassword}, ErrAccountInvalid},
		{"no at sign", CreateAccountRequest{Email: "userexample.com", Password: testPassword}, ErrAccountInvalid},
		{"trailing at", CreateAccountRequest{Email: "user@", Password: testPassword}, ErrAccountInvalid},
		{"embedded space", CreateAccountRequest{Email: "us er@example.com", Password: testPassword}, ErrAccountInvalid},
		{"empty password", CreateAccountRequest{Email: testEmail, Password: ""}, ErrPasswordPolicy},
		{"short password", CreateAccountRequest{Email: testEmail, Password: "shortpw"}, ErrPasswordPolicy},
		{"unknown role", CreateAccountRequest{Email: testEmail, Password: testPassword, Role: "superuser"}, ErrRoleInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.CreateAccount(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateAccountAutoLogin(t *testing.T) {
	e, _, done := newEngineTest(t, func(cfg *Config) {
		cfg.Account.AutoLogin = true
	})
	defer done()
	ctx := context.Background()

	res, err := e.CreateAccount(ctx, CreateAccountRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("AutoLogin should return a token pair")
	}

	auth, err := e.Authorize(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authorize auto-login token: %v", err)
	}
	if auth.UserID != res.UserID {
		t.Fatalf("subject = %q, want %q", auth.UserID, res.UserID)
	}
	if _, err := e.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh auto-login token: %v", err)
	}
}

func TestCreateAccountDisabled(t *testing.T) {
	e, _, done := newEngineTest(t, func(cfg *Config) {
		cfg.Account.Enabled = false
	})
	defer done()

	_, err := e.CreateAccount(context.Background(), CreateAccountRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrAccountInvalid) {
		t.Fatalf("got %v, want ErrAccountInvalid", err)
	}
}

func TestChangePassword(t *testing.T) {
	e, _, done := newEngineTest(t, nil)
	defer done()
	ctx := context.Background()

	userID := mustCreateAccount(t, e, testEmail, testPassword)
	res, err := e.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const newPassword = "battery-staple-horse"

	if err := e.ChangePassword(ctx, userID, "not-the-password", newPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: got %v, want ErrInvalidCredentials", err)
	}
	if err := e.ChangePassword(ctx, userID, testPassword, "shortpw"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak new password: got %v, want ErrPasswordPolicy", err)
	}
	if err := e.ChangePassword(ctx, userID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("unchanged password: got %v, want ErrPasswordReuse", err)
	}

	if err := e.ChangePassword(ctx, userID, testPassword, newPassword); err != nil {
		t.Fatalf("change password: %v", err)
	}

	// Old sessions do not outlive the credential they were minted under.
	if _, err := e.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("old refresh token after change: got %v, want ErrRefreshReuse", err)
	}

	if _, err := e.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := e.Login(ctx, testEmail, newPassword); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	e, _, done := newEngineTest(t, nil)
	defer done()

	err := e.ChangePassword(context.Background(), "no-such-user", testPassword, "battery-staple-horse")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
}

func TestSetAccountActiveRevokesSessions(t *testing.T) {
	e, _, done := newEngineTest(t, nil)
	defer done()
	ctx := context.Background()

	userID := mustCreateAccount(t, e, testEmail, testPassword)
	if _, err := e.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := e.SetAccountActive(ctx, userID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricAccountDisabled] != 1 {
		t.Fatal("deactivation should be counted")
	}
	if snap.Counters[MetricRevokeAll] == 0 {
		t.Fatal("deactivation should revoke outstanding tokens")
	}

	if err := e.SetAccountActive(ctx, "no-such-user", false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("deactivate unknown user: got %v, want ErrUserNotFound", err)
	}
}

func TestUserSummaryProjection(t *testing.T) {
	e, _, done := newEngineTest(t, nil)
	defer done()
	ctx := context.Background()

	res, err := e.CreateAccount(ctx, CreateAccountRequest{
		Email:       testEmail,
		Password:    testPassword,
		Role:        string(RoleOperator),
		Permissions: []string{"sessions:read", "sessions:write"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	u, err := e.User(ctx, res.UserID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if u.Email != testEmail || u.Role != RoleOperator || !u.Active {
		t.Fatalf("unexpected summary: %+v", u)
	}
	if len(u.Permissions) != 2 {
		t.Fatalf("permissions = %v", u.Permissions)
	}

	if _, err := e.User(ctx, "no-such-user"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: got %v, want ErrUserNotFound", err)
	}
}

func TestSecurityPostureReflectsConfig(t *testing.T) {
	e, _, done := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = true
	})
	defer done()

	posture := e.SecurityPosture()
	if posture.SigningAlgorithm != "hs256" {
		t.Fatalf("algorithm = %q", posture.SigningAlgorithm)
	}
	if posture.LockoutThreshold != e.guard.Threshold() {
		t.Fatalf("threshold = %d", posture.LockoutThreshold)
	}
	if !posture.RateLimitingActive {
		t.Fatal("rate limiting should report active")
	}
	if posture.Argon2.Memory != 8*1024 {
		t.Fatalf("argon2 memory = %d", posture.Argon2.Memory)
	}
}
