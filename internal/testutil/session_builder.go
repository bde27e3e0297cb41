package testutil

import (
	"github.com/hupe1980/agentroom/core"
)

// SessionBuilder helps construct configured sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("user-1").
//		Agent(coordinator).Agent(human).
//		Step("research", "HumanAssistant").
//		Steps(5).
//		Build()
type SessionBuilder struct {
	userID      string
	scenario    string
	catalogue   map[string]core.Agent
	vars        core.Variables
	interaction core.Interaction
	outbox      int
}

// NewSessionBuilder creates a new builder for the given user.
func NewSessionBuilder(userID string) *SessionBuilder {
	return &SessionBuilder{
		userID:    userID,
		scenario:  "test",
		catalogue: map[string]core.Agent{},
		vars:      core.Variables{Inputs: map[string]any{}},
		outbox:    1024,
	}
}

// Scenario sets the scenario name (chainable).
func (b *SessionBuilder) Scenario(name string) *SessionBuilder {
	b.scenario = name
	return b
}

// Agent adds a catalogue agent (chainable).
func (b *SessionBuilder) Agent(a core.Agent) *SessionBuilder {
	b.catalogue[a.Name()] = a
	return b
}

// Input sets a scenario input (chainable).
func (b *SessionBuilder) Input(key string, val any) *SessionBuilder {
	b.vars.Inputs[key] = val
	return b
}

// Step appends a step with the given participants (chainable).
func (b *SessionBuilder) Step(name string, participants ...string) *SessionBuilder {
	b.vars.Steps = append(b.vars.Steps, core.StepDef{
		Name:         name,
		Participants: participants,
		Description:  "Step " + name,
	})
	return b
}

// Critic maps participant to critic on the most recently added step (chainable).
func (b *SessionBuilder) Critic(participant, critic string) *SessionBuilder {
	if len(b.vars.Steps) == 0 {
		return b
	}
	st := &b.vars.Steps[len(b.vars.Steps)-1]
	if st.Critics == nil {
		st.Critics = map[string]string{}
	}
	st.Critics[participant] = critic
	return b
}

// Interaction sets the interaction settings (chainable).
func (b *SessionBuilder) Interaction(i core.Interaction) *SessionBuilder {
	b.interaction = i
	return b
}

// Steps sets the interaction ceiling (chainable).
func (b *SessionBuilder) Steps(n int) *SessionBuilder {
	b.interaction.Steps = n
	return b
}

// Build returns a configured *core.Session.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.userID, func(o *core.SessionOptions) { o.OutboxSize = b.outbox })
	s.Configure(b.scenario, b.catalogue, b.vars, b.interaction.WithDefaults())
	return s
}

// Drain returns every message currently queued in the session outbox.
func Drain(s *core.Session) []string {
	var out []string
	for {
		if m, ok := s.TakePending(); ok {
			out = append(out, m)
			continue
		}
		select {
		case m := <-s.Outbox():
			out = append(out, m)
		default:
			return out
		}
	}
}
