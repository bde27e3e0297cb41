// Package gateway serves clients over HTTP.
//
// Routes:
//
//	GET  /ws/:user_id   duplex channel (websocket), one per user
//	POST /cli/events    request/response submission {user_id, text}
//	GET  /health        liveness and session count
//	GET  /metrics       Prometheus exposition, when a Gatherer is configured
//
// Inbound text from either surface goes to a core.MessageHandler. Agent
// output is never part of a response: it is queued on the session outbox and
// the writer of the attached duplex channel delivers it. The writer also sends
// the keep-alive token periodically, and clients echo or ignore it.
package gateway
