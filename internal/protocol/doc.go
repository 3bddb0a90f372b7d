// Package protocol owns the SSH agent message contract.
//
// Ownership boundary:
// - message numbers and signature flags
// - typed field shapes, one per message number
// - ReadMessage/WriteMessage dispatch between payload bytes and shapes
//
// Framing lives in protocol/frame and the field primitives in
// protocol/wire. Nothing in this package keeps state between calls.
//
// Canonical reference:
// - https://tools.ietf.org/id/draft-miller-ssh-agent-00.html
package protocol
