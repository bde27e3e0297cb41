package core

import "time"

// Markers and defaults shared by the executor and scenario loading.
const (
	// TaskDoneMarker in coordinator output completes the current step.
	TaskDoneMarker = "CAMEL_TASK_DONE"
	// HumanDoneMarker from a human participant ends the question/answer portion of a step.
	HumanDoneMarker = "<DONE>"

	DefaultInteractionSteps = 30
	DefaultCriticIterations = 3
	DefaultHumanTimeout     = 60 * time.Second
	DefaultCoordinator      = "ChatManager"
	DefaultAcceptanceMarker = "<ACCEPTED>"
)

// Interaction holds the per-session limits that bound a step.
type Interaction struct {
	// Steps is the interaction ceiling: the maximum number of turns per step.
	Steps int `json:"steps"`
	// CriticIterations caps the revise/review rounds of a critic loop.
	CriticIterations int `json:"critic_iterations"`
	// HumanTimeout bounds a wait for a human participant's reply.
	HumanTimeout time.Duration `json:"human_timeout"`
	// Coordinator names the agent deciding who acts next.
	Coordinator string `json:"coordinator"`
	// AcceptanceMarker in critic feedback accepts the producer's output.
	AcceptanceMarker string `json:"acceptance_marker"`
}

// WithDefaults fills unset fields with the package defaults.
func (i Interaction) WithDefaults() Interaction {
	if i.Steps <= 0 {
		i.Steps = DefaultInteractionSteps
	}
	if i.CriticIterations <= 0 {
		i.CriticIterations = DefaultCriticIterations
	}
	if i.HumanTimeout <= 0 {
		i.HumanTimeout = DefaultHumanTimeout
	}
	if i.Coordinator == "" {
		i.Coordinator = DefaultCoordinator
	}
	if i.AcceptanceMarker == "" {
		i.AcceptanceMarker = DefaultAcceptanceMarker
	}
	return i
}

// StepDef is one configured unit of collaboration.
type StepDef struct {
	Name         string
	Participants []string
	// Critics maps a producing participant to the agent reviewing its output.
	Critics     map[string]string
	Description string
	// Definition is the raw step mapping, handed to the coordinator as the goal.
	Definition map[string]any
}

// Variables are the scenario variables loaded once per session.
type Variables struct {
	Steps  []StepDef
	Inputs map[string]any
}

// Step looks up a step by name.
func (v Variables) Step(name string) (StepDef, bool) {
	for _, s := range v.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepDef{}, false
}

// StepNames returns the step names in declaration order.
func (v Variables) StepNames() []string {
	names := make([]string, len(v.Steps))
	for i, s := range v.Steps {
		names[i] = s.Name
	}
	return names
}

// CloneInputs returns a shallow copy of the scenario inputs.
func (v Variables) CloneInputs() map[string]any {
	out := make(map[string]any, len(v.Inputs)+1)
	for k, val := range v.Inputs {
		out[k] = val
	}
	return out
}
