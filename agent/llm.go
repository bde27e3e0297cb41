package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/internal/util"
	"github.com/hupe1980/agentroom/memory"
	"github.com/hupe1980/agentroom/model"
	"github.com/hupe1980/agentroom/tool"
)

const (
	// maxToolAttempts bounds tool selection rounds per processing phase.
	maxToolAttempts = 4

	noToolNeeded = "no tool needed"

	summarizePrompt = `You are a tool for summarizing and abstracting text.
Return the summarized text to less than 2000 words using markdown format.
The generated summary should be in the same language as the original text.`
)

// endKeywords select the short-term entries condensed into long-term memory by End.
var endKeywords = []string{"Question", "Solution", "Instruction"}

// endMinPriority is above every real priority so End keeps keyword matches only.
const endMinPriority memory.Priority = 10

// LLMAgent answers instructions with a language model, optionally running
// pre-processing tools before and post-processing tools after the model call.
type LLMAgent struct {
	BaseAgent
	spec Spec
	deps Deps

	llm          model.Model
	systemPrompt string
	preTools     []tool.Tool
	postTools    []tool.Tool
	tokens       TokenCounter

	mu    sync.Mutex // serializes Step/End
	umu   sync.Mutex
	usage core.Usage
}

// NewLLMAgent creates an LLMAgent, resolving its model and tools from deps.
func NewLLMAgent(ctx context.Context, name string, spec Spec, deps Deps) (*LLMAgent, error) {
	mem := memory.New(ctx, name, deps.Store, func(o *memory.Options) { o.Logger = deps.Logger })
	return newLLMAgent(name, spec, deps, mem)
}

func newLLMAgent(name string, spec Spec, deps Deps, mem *memory.Memory) (*LLMAgent, error) {
	if deps.Models == nil {
		return nil, fmt.Errorf("agent %s: no model resolver", name)
	}
	llm, err := deps.Models.Resolve(spec.LLM)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	registry := deps.Tools
	if registry == nil {
		registry = tool.NewRegistry()
	}
	pre, err := registry.Build(spec.Tools.PreProcessing)
	if err != nil {
		return nil, fmt.Errorf("agent %s: pre-processing: %w", name, err)
	}
	post, err := registry.Build(spec.Tools.PostProcessing)
	if err != nil {
		return nil, fmt.Errorf("agent %s: post-processing: %w", name, err)
	}

	base := NewBaseAgent(name, spec, core.KindLLM, mem, deps.Logger)
	prompt, err := util.RenderTemplate(spec.SystemPrompt, map[string]any{
		"name":             name,
		"role_name":        base.Role(),
		"role_description": spec.RoleDescription,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: render system prompt: %w", name, err)
	}

	tokens := deps.Tokens
	if tokens == nil {
		tokens = ApproxCounter{}
	}

	a := &LLMAgent{
		BaseAgent:    base,
		spec:         spec,
		deps:         deps,
		llm:          llm,
		systemPrompt: prompt,
		preTools:     pre,
		postTools:    post,
		tokens:       tokens,
	}
	if mem.ShortTermLen() == 0 {
		a.seed()
	}
	a.logger.Info("agent.init", "llm", spec.LLM, "tools", append(tool.Names(pre), tool.Names(post)...))
	return a, nil
}

func (a *LLMAgent) seed() {
	if a.systemPrompt != "" {
		a.mem.AddShortTerm(core.SystemMessage(a.systemPrompt), memory.PriorityLow)
	}
}

// SystemPrompt returns the rendered system prompt.
func (a *LLMAgent) SystemPrompt() string { return a.systemPrompt }

// Step runs one turn: record input, trim, pre-process, query, record output, post-process.
func (a *LLMAgent) Step(ctx context.Context, input core.Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if input.Role == "" {
		input.Role = core.RoleUser
	}
	a.record(input, memory.PriorityLow)
	a.logger.Debug("agent.step.start", "input_chars", len(input.Content))

	if len(a.preTools) > 0 {
		if _, _, err := a.applyTools(ctx, a.preTools, input.Content); err != nil {
			return "", fmt.Errorf("pre-processing: %w", err)
		}
	}

	output, err := a.query(ctx)
	if err != nil {
		return "", err
	}
	a.record(core.AssistantMessage(output), memory.PriorityHigh)

	if len(a.postTools) > 0 {
		conversation := input.Content + "\n" + output
		result, ok, err := a.applyTools(ctx, a.postTools, conversation)
		if err != nil {
			return "", fmt.Errorf("post-processing: %w", err)
		}
		if ok {
			output += result
		}
	}

	a.logger.Debug("agent.step.done", "output_chars", len(output))
	return output, nil
}

// record truncates and appends msg, then trims short-term memory to the token budget.
func (a *LLMAgent) record(msg core.Message, p memory.Priority) {
	msg.Content = truncate(msg.Content, MaxMessageChars)
	a.mem.AddShortTerm(msg, p)
	a.trim()
}

func (a *LLMAgent) trim() {
	total := CountMessages(a.tokens, a.mem.ShortTermMessages())
	dropped := 0
	for total > MaxContextTokens && a.mem.ShortTermLen() > 1 {
		e, ok := a.mem.DropOldestShortTerm()
		if !ok {
			break
		}
		total -= a.tokens.CountTokens(e.Message.Content)
		dropped++
	}
	if dropped > 0 {
		a.logger.Warn("agent.memory.trimmed", "dropped", dropped, "tokens", total)
	}
}

// query asks the model with the system prompt plus the non-system short-term messages.
func (a *LLMAgent) query(ctx context.Context) (string, error) {
	var msgs []core.Message
	for _, m := range a.mem.ShortTermMessages() {
		if m.Role == core.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	return a.complete(ctx, model.Request{Instructions: a.systemPrompt, Messages: msgs})
}

// complete calls the model and accounts usage and cost.
func (a *LLMAgent) complete(ctx context.Context, req model.Request) (string, error) {
	text, usage, err := model.Complete(ctx, a.llm, req)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", a.llm.Info().Name, err)
	}
	var u model.TokenUsage
	if usage != nil {
		u = *usage
	}
	var pricing Pricing
	if a.spec.Pricing != nil {
		pricing = *a.spec.Pricing
	}
	call := CalculateCosts(u, pricing)

	a.umu.Lock()
	a.usage = a.usage.Add(call)
	a.umu.Unlock()

	a.logger.Debug("agent.model.usage",
		"prompt_tokens", call.PromptTokens,
		"completion_tokens", call.CompletionTokens,
		"total_cost", call.TotalCost,
	)
	return text, nil
}

// toolDecision is the model's tool choice.
type toolDecision struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// applyTools lets the model pick one of tools up to maxToolAttempts times.
// It returns the output of the first completed tool run.
func (a *LLMAgent) applyTools(ctx context.Context, tools []tool.Tool, conversation string) (string, bool, error) {
	for attempt := 1; attempt <= maxToolAttempts; attempt++ {
		decision, done, err := a.selectTool(ctx, tools, conversation)
		if err != nil {
			return "", false, err
		}
		if done {
			return "", false, nil
		}
		if decision == nil {
			a.logger.Warn("agent.tool.invalid_selection", "attempt", attempt)
			continue
		}

		t, ok := tool.Find(tools, decision.Tool)
		if !ok {
			a.logger.Warn("agent.tool.unknown", "tool", decision.Tool, "attempt", attempt)
			continue
		}
		res, err := t.Call(ctx, decision.Parameters)
		if err != nil {
			return "", false, fmt.Errorf("apply tool %s: %w", t.Name(), err)
		}
		if res.Completed {
			msg := core.UserMessage(res.Output)
			a.mem.AddToolHistory(msg)
			a.record(msg, memory.PriorityMedium)
			a.logger.Info("agent.tool.result", "tool", t.Name(), "chars", len(res.Output))
			return res.Output, true, nil
		}
		a.record(core.UserMessage(fmt.Sprintf(
			"Because %s did not return any information, now use model internal knowledge.", t.Name(),
		)), memory.PriorityMedium)
	}
	return "", false, nil
}

// selectTool asks the model for a tool. done reports "no tool needed";
// a nil decision without done means the reply could not be parsed.
func (a *LLMAgent) selectTool(ctx context.Context, tools []tool.Tool, conversation string) (*toolDecision, bool, error) {
	reply, err := a.complete(ctx, model.Request{
		Messages: []core.Message{core.UserMessage(toolPrompt(tools, conversation))},
	})
	if err != nil {
		return nil, false, err
	}
	if strings.Contains(strings.ToLower(reply), noToolNeeded) {
		return nil, true, nil
	}
	var d toolDecision
	if err := DecodeJSON(reply, &d); err != nil || d.Tool == "" {
		return nil, false, nil
	}
	return &d, false, nil
}

func toolPrompt(tools []tool.Tool, conversation string) string {
	var b strings.Builder
	b.WriteString("Here are the available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "%s: {\"description\": %q, \"parameters\": %s}\n", t.Name(), t.Description(), schemaJSON(t.Parameters()))
	}
	b.WriteString("\nBased on the following conversation, decide which tool to use and with what parameters:\n\nConversation:\n")
	b.WriteString(conversation)
	b.WriteString("\n\nReply with the tool name and parameters to use in JSON format. If no tool is needed, reply with \"No tool needed\".\n\n")
	b.WriteString("Example:\n{ \"tool\": \"Toolname\", \"parameters\": {\"parameter1\": \"value1\", \"parameter2\": \"value2\"} }\n")
	return b.String()
}

// State implements core.Agent.
func (a *LLMAgent) State() core.AgentState {
	s := a.baseState()
	s.LLM = a.spec.LLM
	s.PreProcessingTools = tool.Names(a.preTools)
	s.PostProcessingTools = tool.Names(a.postTools)
	u := a.Usage()
	s.Usage = &u
	return s
}

// Usage returns the accumulated model usage and cost.
func (a *LLMAgent) Usage() core.Usage {
	a.umu.Lock()
	defer a.umu.Unlock()
	return a.usage
}

// Clone implements core.Agent. The clone shares name, spec and store,
// forks short-term memory and rebuilds its tools.
func (a *LLMAgent) Clone(ctx context.Context) (core.Agent, error) {
	return newLLMAgent(a.name, a.spec, a.deps, a.mem.Fork(ctx))
}

// Reset clears short-term memory and re-seeds the system prompt.
func (a *LLMAgent) Reset() {
	a.mem.ResetShortTerm()
	a.seed()
}

// End condenses keyword matching short-term entries into one long-term
// summary and persists memory.
func (a *LLMAgent) End(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := memory.Filter(a.mem.ShortTerm(), endKeywords, endMinPriority)
	if len(entries) > 0 {
		parts := make([]string, len(entries))
		for i, e := range entries {
			parts[i] = e.Message.Content
		}
		summary, err := a.complete(ctx, model.Request{
			Instructions: summarizePrompt,
			Messages:     []core.Message{core.UserMessage(strings.Join(parts, " "))},
		})
		if err != nil {
			a.logger.Warn("agent.end.summarize_failed", "error", err)
		} else {
			a.mem.AddLongTerm(core.SystemMessage(summary))
		}
	}

	if err := a.mem.Save(ctx); err != nil {
		return fmt.Errorf("agent %s: save memory: %w", a.name, err)
	}
	a.logger.Info("agent.end", "summarized", len(entries))
	return nil
}
