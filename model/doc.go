// Package model defines the provider-agnostic abstractions for interacting
// with language models inside agentroom.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Report token usage so agents can account for cost
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface in sub-packages
// so agents remain decoupled from vendor SDKs. A Registry resolves the `llm`
// name of a scenario agent to a concrete Model.
package model
