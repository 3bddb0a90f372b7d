// Package session owns the per-connection side of the agent protocol.
//
// Ownership boundary:
// - reading and writing whole frames on a net.Conn
// - idle/write deadlines and context cancellation
// - retry/backoff primitives for upstream dials
//
// A Conn carries one exchange at a time. Decoding and encoding are left
// to package protocol.
package session
