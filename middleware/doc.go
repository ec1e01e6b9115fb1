// Package middleware exposes HTTP adapters for sessioncore.Engine: bearer
// token enforcement and per-client rate limiting.
//
// # Guards
//
//   - [RequireAuth] — verifies the Authorization bearer token and optional
//     permissions, then injects the [sessioncore.AuthResult] into the
//     request context.
//   - [RequireRole] — RequireAuth plus a role check.
//   - [RateLimit] — admits or rejects by client identity and tier, setting
//     Retry-After on rejection.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself. All decisions are delegated to
// Engine.Authorize and Engine.CheckRateLimit.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
