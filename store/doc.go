// Package store defines the credential store contract and its Redis
// implementation: durable User, RefreshToken, and LoginAttempt records with
// the conditional updates the authentication core depends on.
//
// # Design
//
// Records are stored as Redis hashes under short-prefix keys with a
// companion email index and a per-user token digest set. The updates that
// must not lose races under concurrency (failed-attempt increment, success
// reset, refresh-token revocation) are Lua scripts, so each is a single
// atomic Redis round trip.
//
// # Architecture boundaries
//
// This package owns persistence and the atomicity of conditional updates.
// Policy (lockout thresholds, token validity windows, error taxonomy seen by
// callers) lives in the root package and internal/lockout.
package store
