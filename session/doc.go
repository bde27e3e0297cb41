// Package session keeps the live per-user sessions of a server process.
//
// A session is created on a user's first contact and lives across websocket
// reconnects. Sessions with no attached channel that stayed idle longer than
// the configured TTL are evicted by the janitor (Store.Run); eviction cancels
// the session context and waits for the step running in it.
package session
