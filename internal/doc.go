// Package internal contains helper utilities that are intentionally private
// to sessioncore, including secure random generation and the opaque refresh
// token codec.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - lockout — threshold lockout guard over the account store
//   - rate — in-memory sliding-window rate limiting
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessioncore API.
//   - Be imported by any package outside the sessioncore module.
package internal
