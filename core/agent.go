package core

import "context"

// Kind discriminates the closed set of agent variants.
type Kind string

const (
	// KindLLM is an agent backed by a language model.
	KindLLM Kind = "llm"
	// KindHuman is a placeholder for a live human whose replies arrive
	// asynchronously through the gateway.
	KindHuman Kind = "human"
)

// Agent is the capability set shared by every participant of a step.
//
// Implementations must:
//   - Respect context cancellation inside Step and End
//   - Return defensive copies from State
//   - Produce fully independent instances from Clone (short-term memory is
//     deep copied, tools are rebuilt)
type Agent interface {
	Name() string
	Role() string
	Kind() Kind

	// Step produces the agent's output for one turn.
	Step(ctx context.Context, input Message) (string, error)

	// State returns a read-only snapshot of the agent.
	State() AgentState

	// Clone forks the agent with a deep copy of its short-term memory.
	Clone(ctx context.Context) (Agent, error)

	// Reset clears working message buffers.
	Reset()

	// End releases resources and commits memory at the end of a step.
	End(ctx context.Context) error
}

// Usage accumulates model token usage and the derived cost.
type Usage struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
	TotalCost        float64 `json:"total_cost"`
}

// Add returns the field-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Calls:            u.Calls + o.Calls,
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		InputCost:        u.InputCost + o.InputCost,
		OutputCost:       u.OutputCost + o.OutputCost,
		TotalCost:        u.TotalCost + o.TotalCost,
	}
}

// AgentState is the retrievable state of an agent.
type AgentState struct {
	Name                string    `json:"name"`
	Role                string    `json:"role"`
	Kind                Kind      `json:"kind"`
	ShortTerm           []Message `json:"short_term_memory"`
	ToolHistory         []Message `json:"tool_history"`
	LLM                 string    `json:"llm,omitempty"`
	PreProcessingTools  []string  `json:"pre_processing_tools"`
	PostProcessingTools []string  `json:"post_processing_tools"`
	Usage               *Usage    `json:"usage,omitempty"`
}

// Clone returns a deep copy of the state.
func (s AgentState) Clone() AgentState {
	c := s
	c.ShortTerm = CloneMessages(s.ShortTerm)
	c.ToolHistory = CloneMessages(s.ToolHistory)
	c.PreProcessingTools = append([]string(nil), s.PreProcessingTools...)
	c.PostProcessingTools = append([]string(nil), s.PostProcessingTools...)
	if s.Usage != nil {
		u := *s.Usage
		c.Usage = &u
	}
	return c
}
