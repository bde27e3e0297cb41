package agent

import (
	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
	"github.com/hupe1980/agentroom/memory"
)

// BaseAgent bundles identity, memory and logging shared by the concrete
// agent kinds. Embed it in agent implementations.
type BaseAgent struct {
	name        string
	role        string
	description string
	kind        core.Kind
	mem         *memory.Memory
	logger      logging.Logger
}

// NewBaseAgent constructs a BaseAgent. The role defaults to the agent name.
func NewBaseAgent(name string, spec Spec, kind core.Kind, mem *memory.Memory, logger logging.Logger) BaseAgent {
	role := spec.RoleName
	if role == "" {
		role = name
	}
	return BaseAgent{
		name:        name,
		role:        role,
		description: spec.RoleDescription,
		kind:        kind,
		mem:         mem,
		logger:      logging.With(logger, "agent", name),
	}
}

// Name returns the agent's unique name within a scenario.
func (b *BaseAgent) Name() string { return b.name }

// Role returns the role name.
func (b *BaseAgent) Role() string { return b.role }

// Description returns the role description.
func (b *BaseAgent) Description() string { return b.description }

// Kind returns the agent variant.
func (b *BaseAgent) Kind() core.Kind { return b.kind }

// Memory exposes the agent's memory.
func (b *BaseAgent) Memory() *memory.Memory { return b.mem }

func (b *BaseAgent) baseState() core.AgentState {
	return core.AgentState{
		Name:                b.name,
		Role:                b.role,
		Kind:                b.kind,
		ShortTerm:           b.mem.ShortTermMessages(),
		ToolHistory:         b.mem.ToolHistory(),
		PreProcessingTools:  []string{},
		PostProcessingTools: []string{},
	}
}
