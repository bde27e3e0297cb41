package core

// Phase is the step executor state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStepActive
	PhaseAgentTurn
	PhaseCriticLoop
	PhaseAwaitingHuman
	PhaseStepComplete
	PhaseSessionDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStepActive:
		return "step_active"
	case PhaseAgentTurn:
		return "agent_turn"
	case PhaseCriticLoop:
		return "critic_loop"
	case PhaseAwaitingHuman:
		return "awaiting_human"
	case PhaseStepComplete:
		return "step_complete"
	case PhaseSessionDone:
		return "session_done"
	default:
		return "unknown"
	}
}
