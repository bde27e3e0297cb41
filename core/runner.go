package core

import "context"

// Ack acknowledges a client submission. Agent output is delivered
// asynchronously through the session outbox, never in the Ack.
type Ack struct {
	Message string `json:"message"`
	// OK is false when the submission was rejected (bad choice, no
	// configuration, scenario resolution failure).
	OK bool `json:"-"`
}

// MessageHandler routes client text to the owning session. sync is true for
// request/response clients and false for duplex-channel clients.
type MessageHandler interface {
	Handle(ctx context.Context, userID, text string, sync bool) Ack
}

// KeepAliveToken is exchanged on the duplex channel to keep it open. It is
// never routed to a session.
const KeepAliveToken = "__keepalive__"

// Setup is a resolved scenario, ready to be installed into a session with
// Session.Configure.
type Setup struct {
	Scenario    string
	Agents      map[string]Agent
	Variables   Variables
	Interaction Interaction
}
