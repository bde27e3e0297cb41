package core

import "context"

// StepExecutor drives one configured step of a session to completion.
//
// Implementations:
//   - Sequence participant turns in the order the step and the coordinator dictate
//   - Absorb in-session failures (turn errors, human timeouts) as observations
//   - Stop at the session's interaction ceiling
//   - Return an error only when the step cannot be resolved
type StepExecutor interface {
	Execute(ctx context.Context, sess *Session, step string) error
}
