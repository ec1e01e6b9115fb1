package internaldefs

import (
	sessioncore "github.com/tverran/sessioncore"
)

// CounterDef binds a core metric id to its stable exported name.
type CounterDef struct {
	ID   sessioncore.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram id to its stable exported name.
type HistogramDef struct {
	ID   sessioncore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order so all
// exporters render identical series.
var CounterDefs = []CounterDef{
	{ID: sessioncore.MetricLoginSuccess, Name: "sessioncore_login_success_total", Help: "Successful login attempts."},
	{ID: sessioncore.MetricLoginFailure, Name: "sessioncore_login_failure_total", Help: "Failed login attempts."},
	{ID: sessioncore.MetricLoginRateLimited, Name: "sessioncore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: sessioncore.MetricLoginLocked, Name: "sessioncore_login_locked_total", Help: "Login attempts rejected by an active lockout."},
	{ID: sessioncore.MetricLockoutTriggered, Name: "sessioncore_lockout_triggered_total", Help: "Lockouts triggered by reaching the failure threshold."},
	{ID: sessioncore.MetricRefreshSuccess, Name: "sessioncore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: sessioncore.MetricRefreshFailure, Name: "sessioncore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: sessioncore.MetricRefreshReuseDetected, Name: "sessioncore_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: sessioncore.MetricRateLimitHit, Name: "sessioncore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: sessioncore.MetricTokenIssued, Name: "sessioncore_token_issued_total", Help: "Issued refresh tokens."},
	{ID: sessioncore.MetricTokenRevoked, Name: "sessioncore_token_revoked_total", Help: "Revoked refresh tokens."},
	{ID: sessioncore.MetricRevokeAll, Name: "sessioncore_revoke_all_total", Help: "Bulk revocations across a user's sessions."},
	{ID: sessioncore.MetricAuthorizeSuccess, Name: "sessioncore_authorize_success_total", Help: "Successful authorization checks."},
	{ID: sessioncore.MetricAuthorizeFailure, Name: "sessioncore_authorize_failure_total", Help: "Failed authorization checks."},
	{ID: sessioncore.MetricLogout, Name: "sessioncore_logout_total", Help: "Logout operations."},
	{ID: sessioncore.MetricAccountCreated, Name: "sessioncore_account_created_total", Help: "Created accounts."},
	{ID: sessioncore.MetricPasswordChanged, Name: "sessioncore_password_changed_total", Help: "Successful password changes."},
	{ID: sessioncore.MetricAccountDisabled, Name: "sessioncore_account_disabled_total", Help: "Account disable operations."},
	{ID: sessioncore.MetricAccountUnlocked, Name: "sessioncore_account_unlocked_total", Help: "Administrative account unlocks."},
	{ID: sessioncore.MetricSweepDeleted, Name: "sessioncore_sweep_deleted_total", Help: "Expired refresh tokens removed by the sweeper."},
	{ID: sessioncore.MetricStoreUnavailable, Name: "sessioncore_store_unavailable_total", Help: "Store calls that failed closed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessioncore.MetricAuthorizeLatency, Name: "sessioncore_authorize_latency_seconds", Help: "Authorize latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// core histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with names usable in OTel
// instrument identifiers.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus and OTel expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
