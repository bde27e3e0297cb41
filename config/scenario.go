package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentroom/agent"
	"github.com/hupe1980/agentroom/core"
)

// ErrInvalidScenario is returned when a scenario file fails validation.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a decoded scenario file.
type Scenario struct {
	Agents      map[string]agent.Spec `yaml:"agents"`
	Variables   ScenarioVariables     `yaml:"variables"`
	Interaction InteractionConfig     `yaml:"interaction"`
}

// ScenarioVariables holds the scenario inputs and its ordered steps.
type ScenarioVariables struct {
	Inputs map[string]any `yaml:"inputs"`
	Steps  Steps          `yaml:"steps"`
	// present is false when the file has no steps key at all.
	present bool
}

// UnmarshalYAML records whether the steps key was given.
func (v *ScenarioVariables) UnmarshalYAML(node *yaml.Node) error {
	type plain ScenarioVariables
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*v = ScenarioVariables(p)
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "steps" {
			v.present = true
		}
	}
	return nil
}

// Step is one scenario step.
type Step struct {
	Name         string            `yaml:"-"`
	Participants []string          `yaml:"participants"`
	Critics      map[string]string `yaml:"critics"`
	Description  string            `yaml:"description"`
	// Raw is the full step mapping as written in the file.
	Raw map[string]any `yaml:"-"`
}

// Steps keeps scenario steps in file order.
type Steps []Step

// UnmarshalYAML decodes a step mapping, preserving key order.
func (s *Steps) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: steps must be a mapping", node.Line)
	}
	out := make(Steps, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var step Step
		if err := val.Decode(&step); err != nil {
			return fmt.Errorf("step %s: %w", key.Value, err)
		}
		if err := val.Decode(&step.Raw); err != nil {
			return fmt.Errorf("step %s: %w", key.Value, err)
		}
		step.Name = key.Value
		out = append(out, step)
	}
	*s = out
	return nil
}

// LoadScenario reads and validates the scenario file at path. Environment
// variables referenced as $VAR or ${VAR} are expanded before parsing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario is LoadScenario for an in-memory document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that the scenario references only declared agents. The
// coordinator is checked against the interaction settings with core defaults
// applied.
func (s *Scenario) Validate() error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("%w: no agents", ErrInvalidScenario)
	}

	names := make([]string, 0, len(s.Agents))
	for name := range s.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.Agents[name].Kind(); err != nil {
			return fmt.Errorf("%w: agent %s: %v", ErrInvalidScenario, name, err)
		}
	}

	coordinator := s.Interaction.Coordinator
	if coordinator == "" {
		coordinator = core.DefaultCoordinator
	}
	if _, ok := s.Agents[coordinator]; !ok {
		return fmt.Errorf("%w: coordinator %s is not declared", ErrInvalidScenario, coordinator)
	}

	seen := make(map[string]bool, len(s.Variables.Steps))
	for _, step := range s.Variables.Steps {
		if seen[step.Name] {
			return fmt.Errorf("%w: duplicate step %s", ErrInvalidScenario, step.Name)
		}
		seen[step.Name] = true

		for _, p := range step.Participants {
			if _, ok := s.Agents[p]; !ok {
				return fmt.Errorf("%w: step %s: participant %s is not declared", ErrInvalidScenario, step.Name, p)
			}
		}
		for producer, critic := range step.Critics {
			if _, ok := s.Agents[producer]; !ok {
				return fmt.Errorf("%w: step %s: critic target %s is not declared", ErrInvalidScenario, step.Name, producer)
			}
			if _, ok := s.Agents[critic]; !ok {
				return fmt.Errorf("%w: step %s: critic %s is not declared", ErrInvalidScenario, step.Name, critic)
			}
		}
	}
	return nil
}

// HasSteps reports whether the file declared a steps key.
func (s *Scenario) HasSteps() bool { return s.Variables.present }

// CoreVariables converts the scenario variables for the session. A file
// without a steps key yields nil Steps.
func (s *Scenario) CoreVariables() core.Variables {
	vars := core.Variables{Inputs: make(map[string]any, len(s.Variables.Inputs))}
	for k, v := range s.Variables.Inputs {
		vars.Inputs[k] = v
	}
	if !s.HasSteps() {
		return vars
	}
	vars.Steps = make([]core.StepDef, 0, len(s.Variables.Steps))
	for _, st := range s.Variables.Steps {
		vars.Steps = append(vars.Steps, core.StepDef{
			Name:         st.Name,
			Participants: append([]string(nil), st.Participants...),
			Critics:      st.Critics,
			Description:  st.Description,
			Definition:   st.Raw,
		})
	}
	return vars
}

// CoreInteraction merges the scenario interaction settings over defaults.
func (s *Scenario) CoreInteraction(defaults InteractionConfig) core.Interaction {
	return s.Interaction.Merge(defaults).Core()
}
