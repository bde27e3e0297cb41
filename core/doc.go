// Package core provides the foundational domain types and interfaces used by
// agentroom. It defines the core abstractions for:
//
//   - Agents (LLM-backed or human-backed participants with retrievable state)
//   - Sessions (per-user orchestration state: active agents, task queue,
//     human-reply rendezvous, snapshot history, outbound queue)
//   - Snapshots (immutable captures of every agent's state per turn)
//   - Record stores (durable per-agent memory records)
//   - Interaction limits (the per-step turn ceiling)
//
// Implementation concerns (persistence backends, the step executor, concrete
// agents, transport) live in sibling packages and depend on these contracts.
package core
