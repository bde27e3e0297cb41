// Package memory implements per-agent conversational memory and the
// core.RecordStore backends that persist it.
//
// A Memory holds a bounded short-term window of prioritized messages, a
// long-term list and a tool history. Save writes long-term and tool history
// through the store and clears the short-term window; Load restores them.
//
// Backends:
//
//   - FileStore writes one JSON document per agent below a directory
//   - RedisStore keeps the same document under a prefixed key
//   - InMemoryStore keeps records in process, for tests and ephemeral runs
//
// Select a backend at wiring time and depend on core.RecordStore elsewhere.
package memory
