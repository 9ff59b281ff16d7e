// Package diag runs the diagnostics server on top of a transport Endpoint.
//
// Ownership boundary:
// - accept loop with retry backoff and the connection-accepted hook
// - per-session read/dispatch/reply
// - the Server command set (OK / Error replies)
//
// Command-specific behavior lives in Handlers registered by the caller.
package diag
