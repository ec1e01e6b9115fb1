// Package sessioncore provides a session and access control core: JWT
// access tokens, rotating opaque refresh tokens, Redis-backed account
// lockout, and a sliding-window rate limiter, behind a single [Engine].
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sessioncore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginResult, AuthResult, MetricsSnapshot,
// etc.). Internal coordination lives in sub-packages: credential rows in
// store, token signing in token, password hashing in password, and
// lockout, rate limiting, and audit dispatch under internal/.
//
// # What this package must NOT do
//
//   - Expose Redis clients or row encodings in its public API beyond the
//     [store.Store] seam.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only except for the initial decoy hash).
//   - Import any sub-package that re-imports sessioncore (no import
//     cycles).
//
// # Performance contract
//
// Authorize is the hot path: verification is purely cryptographic and
// never touches the store. Login, Refresh, and account operations are
// bounded by [Config.Store] timeouts and fail closed when the store does
// not answer in time.
package sessioncore
