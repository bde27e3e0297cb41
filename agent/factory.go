package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
	"github.com/hupe1980/agentroom/model"
	"github.com/hupe1980/agentroom/tool"
)

// ErrUnknownAgentType is returned by New for an unsupported type discriminant.
var ErrUnknownAgentType = errors.New("unknown agent type")

// Type discriminants accepted in scenario files. The CamelCase values are
// legacy aliases kept for existing configuration files.
const (
	TypeLLM        = "llm"
	TypeHuman      = "human"
	TypeCAMELAgent = "CAMELAgent"
	TypeHumanAgent = "HumanAgent"
)

// ToolSpec lists the tools an agent runs before and after its model call.
type ToolSpec struct {
	PreProcessing  []string `yaml:"pre-processing" json:"pre-processing"`
	PostProcessing []string `yaml:"post-processing" json:"post-processing"`
}

// Spec is the scenario description of a single agent.
type Spec struct {
	Type            string   `yaml:"type" json:"type"`
	RoleName        string   `yaml:"role_name" json:"role_name"`
	RoleDescription string   `yaml:"role_description" json:"role_description"`
	SystemPrompt    string   `yaml:"system_prompt" json:"system_prompt"`
	LLM             string   `yaml:"llm" json:"llm"`
	Pricing         *Pricing `yaml:"pricing" json:"pricing,omitempty"`
	Tools           ToolSpec `yaml:"tools" json:"tools"`
}

// Kind resolves the type discriminant.
func (s Spec) Kind() (core.Kind, error) {
	switch strings.TrimSpace(s.Type) {
	case TypeLLM, TypeCAMELAgent:
		return core.KindLLM, nil
	case TypeHuman, TypeHumanAgent:
		return core.KindHuman, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAgentType, s.Type)
	}
}

// ModelResolver resolves the llm name of a Spec to a model.
type ModelResolver interface {
	Resolve(name string) (model.Model, error)
}

// Deps bundles the collaborators agents are built with.
type Deps struct {
	Models ModelResolver
	Store  core.RecordStore
	Tools  *tool.Registry
	Tokens TokenCounter
	Logger logging.Logger
}

// New builds the agent described by spec.
func New(ctx context.Context, name string, spec Spec, deps Deps) (core.Agent, error) {
	kind, err := spec.Kind()
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	switch kind {
	case core.KindHuman:
		return NewHumanAgent(ctx, name, spec, deps), nil
	default:
		return NewLLMAgent(ctx, name, spec, deps)
	}
}

// NewCatalogue builds every agent of a scenario.
func NewCatalogue(ctx context.Context, specs map[string]Spec, deps Deps) (map[string]core.Agent, error) {
	agents := make(map[string]core.Agent, len(specs))
	for name, spec := range specs {
		a, err := New(ctx, name, spec, deps)
		if err != nil {
			return nil, err
		}
		agents[name] = a
	}
	return agents, nil
}
