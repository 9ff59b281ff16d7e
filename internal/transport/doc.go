// Package transport owns the local channel a diagnostic tool attaches over.
//
// Ownership boundary:
// - Endpoint: a listening object bound to a named OS resource
// - Connection: one accepted bidirectional byte stream
// - endpoint naming and the tool-side Dial
//
// On unix the Endpoint is a domain socket bound to a filesystem path; on
// windows it is a named pipe. The variant is fixed at build time and both
// present the same semantics.
//
// Closing an Endpoint unblocks a pending Accept, which then fails with
// ErrClosed. Closing a Connection while another goroutine is blocked reading
// or writing it is supported by the Go runtime's poller on both variants, but
// the pending call's error is platform specific.
package transport
