// Package rate implements in-memory sliding-window rate limiting for
// security-sensitive authentication workflows.
//
// # Window semantics
//
// Each client keeps the timestamps of its requests inside the shared window.
// A request is admitted when, after pruning timestamps older than the window,
// fewer than the tier's limit remain. Rejections report how long until the
// oldest retained timestamp ages out.
//
// Client state lives in 32 shards selected by FNV-1a of the client ID, each
// behind its own mutex, so unrelated clients do not contend.
//
// # What this package must NOT do
//
//   - Decide what a client ID is (callers resolve identity).
//   - Be imported outside the sessioncore module.
package rate
