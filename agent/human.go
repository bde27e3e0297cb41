package agent

import (
	"context"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/memory"
)

// HumanAgent stands in for a live participant. Replies are collected by the
// executor through the session's human rendezvous; Step only records and
// echoes what the human said.
type HumanAgent struct {
	BaseAgent
	spec Spec
	deps Deps
}

// NewHumanAgent creates a HumanAgent.
func NewHumanAgent(ctx context.Context, name string, spec Spec, deps Deps) *HumanAgent {
	mem := memory.New(ctx, name, deps.Store, func(o *memory.Options) { o.Logger = deps.Logger })
	return &HumanAgent{
		BaseAgent: NewBaseAgent(name, spec, core.KindHuman, mem, deps.Logger),
		spec:      spec,
		deps:      deps,
	}
}

// Step records the human reply and returns it unchanged.
func (h *HumanAgent) Step(ctx context.Context, input core.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if input.Role == "" {
		input.Role = core.RoleUser
	}
	input.Content = truncate(input.Content, MaxMessageChars)
	h.mem.AddShortTerm(input, memory.PriorityLow)
	return input.Content, nil
}

// State implements core.Agent. Humans have no model and no usage.
func (h *HumanAgent) State() core.AgentState { return h.baseState() }

// Clone implements core.Agent.
func (h *HumanAgent) Clone(ctx context.Context) (core.Agent, error) {
	return &HumanAgent{
		BaseAgent: NewBaseAgent(h.name, h.spec, core.KindHuman, h.mem.Fork(ctx), h.deps.Logger),
		spec:      h.spec,
		deps:      h.deps,
	}, nil
}

// Reset clears short-term memory.
func (h *HumanAgent) Reset() { h.mem.ResetShortTerm() }

// End is a no-op for humans.
func (h *HumanAgent) End(context.Context) error { return nil }
