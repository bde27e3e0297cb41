package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentroom/core"
)

// Reply is one scripted Step outcome.
type Reply struct {
	Text string
	Err  error
}

// ScriptedAgent is a core.Agent answering from a fixed script. When the
// script is exhausted it answers with Fallback (or an echo if empty).
// Clones share the script and the call log so tests can observe active
// agents created by the executor.
type ScriptedAgent struct {
	name string
	kind core.Kind

	// Fallback is returned once the script is exhausted.
	Fallback string

	shared *scriptState
}

type scriptState struct {
	mu      sync.Mutex
	script  []Reply
	calls   []core.Message
	ends    int
	resets  int
	clones  int
	respond func(core.Message) (string, error)
}

// NewScriptedAgent creates an LLM kind scripted agent.
func NewScriptedAgent(name string, replies ...string) *ScriptedAgent {
	a := &ScriptedAgent{name: name, kind: core.KindLLM, shared: &scriptState{}}
	a.Then(replies...)
	return a
}

// NewScriptedHuman creates a human kind agent that echoes its input.
func NewScriptedHuman(name string) *ScriptedAgent {
	return &ScriptedAgent{name: name, kind: core.KindHuman, shared: &scriptState{}}
}

// Then appends replies to the script.
func (a *ScriptedAgent) Then(replies ...string) *ScriptedAgent {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	for _, r := range replies {
		a.shared.script = append(a.shared.script, Reply{Text: r})
	}
	return a
}

// ThenFail appends a failing step to the script.
func (a *ScriptedAgent) ThenFail(err error) *ScriptedAgent {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	a.shared.script = append(a.shared.script, Reply{Err: err})
	return a
}

// RespondWith installs a function used once the script is exhausted.
func (a *ScriptedAgent) RespondWith(fn func(core.Message) (string, error)) *ScriptedAgent {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	a.shared.respond = fn
	return a
}

// Calls returns the inputs received by this agent and its clones.
func (a *ScriptedAgent) Calls() []core.Message {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	return core.CloneMessages(a.shared.calls)
}

// Ends returns how often End was called.
func (a *ScriptedAgent) Ends() int {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	return a.shared.ends
}

// Clones returns how often Clone was called.
func (a *ScriptedAgent) Clones() int {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	return a.shared.clones
}

// Name implements core.Agent.
func (a *ScriptedAgent) Name() string { return a.name }

// Role implements core.Agent.
func (a *ScriptedAgent) Role() string { return a.name }

// Kind implements core.Agent.
func (a *ScriptedAgent) Kind() core.Kind { return a.kind }

// Step implements core.Agent.
func (a *ScriptedAgent) Step(ctx context.Context, input core.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := a.shared
	s.mu.Lock()
	s.calls = append(s.calls, input)
	if len(s.script) > 0 {
		r := s.script[0]
		s.script = s.script[1:]
		s.mu.Unlock()
		return r.Text, r.Err
	}
	respond := s.respond
	s.mu.Unlock()

	if respond != nil {
		return respond(input)
	}
	if a.Fallback != "" {
		return a.Fallback, nil
	}
	return fmt.Sprintf("%s: %s", a.name, input.Content), nil
}

// State implements core.Agent.
func (a *ScriptedAgent) State() core.AgentState {
	return core.AgentState{Name: a.name, Role: a.name, Kind: a.kind, ShortTerm: a.Calls()}
}

// Clone implements core.Agent.
func (a *ScriptedAgent) Clone(context.Context) (core.Agent, error) {
	a.shared.mu.Lock()
	a.shared.clones++
	a.shared.mu.Unlock()
	c := *a
	return &c, nil
}

// Reset implements core.Agent.
func (a *ScriptedAgent) Reset() {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	a.shared.resets++
}

// End implements core.Agent.
func (a *ScriptedAgent) End(context.Context) error {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	a.shared.ends++
	return nil
}
