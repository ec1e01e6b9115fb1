package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tverran/sessioncore/store"
)

func newGuardTest(t *testing.T, cfg Config) (*Guard, *store.Redis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedis(rdb, "sc", 0)
	return NewGuard(st, cfg), st, func() {
		rdb.Close()
		mr.Close()
	}
}

func seedUser(t *testing.T, st *store.Redis) *store.User {
	t.Helper()
	u := &store.User{
		ID:           "u-1",
		Email:        "user@example.com",
		PasswordHash: "$argon2id$fake",
		Role:         store.RoleUser,
		Active:       true,
		CreatedAt:    time.Now().Unix(),
	}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestGuardLocksAtThreshold(t *testing.T) {
	guard, st, done := newGuardTest(t, Config{Threshold: 3, Duration: time.Hour})
	defer done()
	ctx := context.Background()
	u := seedUser(t, st)

	for i := 1; i < 3; i++ {
		out, err := guard.RecordFailure(ctx, u.ID)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if out.LockedNow {
			t.Fatalf("locked before threshold at attempt %d", i)
		}
	}

	out, err := guard.RecordFailure(ctx, u.ID)
	if err != nil {
		t.Fatalf("threshold failure: %v", err)
	}
	if !out.LockedNow {
		t.Fatal("expected lock at threshold")
	}

	reloaded, err := st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !guard.IsLocked(reloaded, time.Now()) {
		t.Fatal("expected IsLocked true")
	}
}

func TestGuardExpiredLockReadsUnlocked(t *testing.T) {
	guard, st, done := newGuardTest(t, Config{Threshold: 1, Duration: time.Hour})
	defer done()
	ctx := context.Background()
	u := seedUser(t, st)

	if _, err := guard.RecordFailure(ctx, u.ID); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	reloaded, err := st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !guard.IsLocked(reloaded, time.Now()) {
		t.Fatal("expected lock")
	}
	// Reading past the expiry requires no store write.
	if guard.IsLocked(reloaded, time.Now().Add(2*time.Hour)) {
		t.Fatal("expired lock still reads locked")
	}
}

func TestGuardSuccessAndResetClearState(t *testing.T) {
	guard, st, done := newGuardTest(t, Config{Threshold: 2, Duration: time.Hour})
	defer done()
	ctx := context.Background()
	u := seedUser(t, st)

	for i := 0; i < 2; i++ {
		if _, err := guard.RecordFailure(ctx, u.ID); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := guard.Reset(ctx, u.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	reloaded, err := st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.FailedAttempts != 0 || guard.IsLocked(reloaded, time.Now()) {
		t.Fatalf("reset left state behind: %+v", reloaded)
	}

	if _, err := guard.RecordFailure(ctx, u.ID); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := guard.RecordSuccess(ctx, u.ID); err != nil {
		t.Fatalf("record success: %v", err)
	}
	reloaded, err = st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.FailedAttempts != 0 {
		t.Fatalf("success did not reset counter: %d", reloaded.FailedAttempts)
	}
}

func TestGuardDefaults(t *testing.T) {
	guard := NewGuard(nil, Config{})
	if guard.Threshold() != DefaultThreshold {
		t.Fatalf("expected default threshold, got %d", guard.Threshold())
	}
	if guard.Duration() != DefaultDuration {
		t.Fatalf("expected default duration, got %v", guard.Duration())
	}
}
