// Package agent serves the SSH agent protocol on top of a Backend that
// holds the keys.
//
// The agent itself stores nothing: identities and signatures come from
// the Backend, and only the lock state lives here. Requests the Backend
// cannot serve are answered with AGENT_FAILURE.
package agent
