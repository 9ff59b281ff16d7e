// Package ipc owns the diagnostics wire contract.
//
// Ownership boundary:
// - fixed 20-byte frame header
// - message encode/decode over a byte stream
// - payload codecs (fixed layout and self-describing)
//
// All multi-byte fields are little-endian.
package ipc
