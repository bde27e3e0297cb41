package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/agentroom/agent"
	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
)

var (
	// ErrStepNotFound is returned when the requested step is not part of the
	// session's scenario.
	ErrStepNotFound = errors.New("step not found")
	// ErrAgentNotFound is returned when the coordinator is missing from the
	// scenario catalogue.
	ErrAgentNotFound = errors.New("agent not found")
)

// FinalAnswerPrompt asks the coordinator to conclude a completed step.
const FinalAnswerPrompt = "Provide your Final Answer based on your system prompt."

// Config tunes the executor.
type Config struct {
	// RetryBackoff is the pause before a failed turn is retried.
	RetryBackoff time.Duration

	// MaxConcurrentSteps bounds how many steps run at once across all
	// sessions. Zero means unlimited.
	MaxConcurrentSteps int
}

// DefaultConfig is used when no Config is given.
var DefaultConfig = Config{
	RetryBackoff:       time.Second,
	MaxConcurrentSteps: 0,
}

// Options configures an Executor.
//
// Example:
//
//	exec := engine.New(func(o *engine.Options) {
//	    o.Logger = logger
//	    o.Callbacks = collector.Callbacks()
//	})
type Options struct {
	Config Config

	// Callbacks are registered in order before the executor is returned.
	Callbacks []Callback

	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// Executor drives the steps of a session. It is stateless with respect to
// sessions; everything a step mutates lives in the *core.Session, so one
// Executor serves all sessions concurrently.
//
// A step proceeds as follows:
//  1. The step is resolved (a single-step scenario auto-selects it)
//  2. The coordinator, the participants and their critics are cloned from
//     the catalogue into the session's active agents
//  3. Turns run until the coordinator emits core.TaskDoneMarker or the
//     interaction ceiling is reached
//  4. A completed step is concluded with the coordinator's final answer
//  5. All active agents are ended and the session is marked done
type Executor struct {
	config    Config
	callbacks *CallbackManager
	slots     chan struct{}
	logger    logging.Logger
}

// New creates an Executor.
func New(optFns ...func(o *Options)) *Executor {
	opts := Options{Config: DefaultConfig}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Executor{
		config:    opts.Config,
		callbacks: NewCallbackManager(),
		logger:    logging.With(opts.Logger, "component", "engine"),
	}
	if opts.Config.MaxConcurrentSteps > 0 {
		e.slots = make(chan struct{}, opts.Config.MaxConcurrentSteps)
	}
	for _, cb := range opts.Callbacks {
		e.callbacks.RegisterCallback(cb)
	}
	return e
}

// RegisterCallback adds a lifecycle callback.
func (e *Executor) RegisterCallback(cb Callback) {
	e.callbacks.RegisterCallback(cb)
}

var _ core.StepExecutor = (*Executor)(nil)

// Execute runs stepName of sess to completion. In-session failures are
// absorbed and surface as observations or notices on the session outbox;
// only an unresolvable step or coordinator is returned as an error.
func (e *Executor) Execute(ctx context.Context, sess *core.Session, stepName string) error {
	log := logging.With(e.logger, "user_id", sess.UserID())

	vars := sess.Variables()
	if len(vars.Steps) == 0 {
		log.Error("engine.step.missing_steps")
		return e.abort(sess, "Configuration error: 'steps' key is missing.", fmt.Errorf("%w: scenario has no steps", ErrStepNotFound))
	}
	if len(vars.Steps) == 1 {
		stepName = vars.Steps[0].Name
	}
	step, ok := vars.Step(stepName)
	if !ok {
		log.Error("engine.step.not_found", "step", stepName)
		return e.abort(sess, fmt.Sprintf("Configuration error: step '%s' is missing.", stepName), fmt.Errorf("%w: %s", ErrStepNotFound, stepName))
	}

	if e.slots != nil {
		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
		case <-ctx.Done():
			sess.SetStarted(false)
			return nil
		}
	}

	r, err := e.prepare(ctx, sess, step, logging.With(log, "step", step.Name))
	if err != nil {
		return err
	}
	r.run(ctx)
	return nil
}

func (e *Executor) abort(sess *core.Session, notice string, err error) error {
	sess.Send(notice)
	sess.SetStarted(false)
	sess.SetPhase(core.PhaseIdle)
	return err
}

// prepare clones the step's agents into the session and builds the run state.
func (e *Executor) prepare(ctx context.Context, sess *core.Session, step core.StepDef, log logging.Logger) (*stepRun, error) {
	ia := sess.Interaction()

	proto, ok := sess.CatalogueAgent(ia.Coordinator)
	if !ok {
		log.Error("engine.coordinator.not_found", "coordinator", ia.Coordinator)
		return nil, e.abort(sess, fmt.Sprintf("Configuration error: coordinator '%s' is missing.", ia.Coordinator),
			fmt.Errorf("%w: coordinator %s", ErrAgentNotFound, ia.Coordinator))
	}
	coordinator, err := proto.Clone(ctx)
	if err != nil {
		log.Error("engine.coordinator.clone_failed", "error", err)
		return nil, e.abort(sess, fmt.Sprintf("Configuration error: coordinator '%s' could not be started.", ia.Coordinator),
			fmt.Errorf("clone coordinator %s: %w", ia.Coordinator, err))
	}

	sess.ClearAgents()
	sess.SetCurrentStep(step.Name)
	sess.SetPhase(core.PhaseStepActive)
	sess.SetAgent(ia.Coordinator, coordinator)
	log.Info("engine.agent.cloned", "agent", ia.Coordinator)

	names := append([]string(nil), step.Participants...)
	critics := make([]string, 0, len(step.Critics))
	for _, c := range step.Critics {
		critics = append(critics, c)
	}
	sort.Strings(critics)
	names = append(names, critics...)

	for _, name := range names {
		if _, exists := sess.Agent(name); exists {
			continue
		}
		proto, ok := sess.CatalogueAgent(name)
		if !ok {
			log.Error("engine.agent.not_found", "agent", name)
			continue
		}
		a, err := proto.Clone(ctx)
		if err != nil {
			log.Error("engine.agent.clone_failed", "agent", name, "error", err)
			continue
		}
		sess.SetAgent(name, a)
		log.Info("engine.agent.cloned", "agent", name, "kind", a.Kind())
	}

	inputs := sess.Variables().CloneInputs()
	inputs["goal"] = step.Definition
	if step.Definition == nil {
		inputs["goal"] = map[string]any{
			"participants": step.Participants,
			"description":  step.Description,
		}
	}

	return &stepRun{
		exec:        e,
		sess:        sess,
		step:        step,
		ia:          ia,
		coordinator: coordinator,
		inputs:      inputs,
		limiter:     core.NewInteractionLimiter(ia.Steps),
		humanDone:   map[string]bool{},
		logger:      log,
	}, nil
}

func (e *Executor) fire(ctx context.Context, typ CallbackType, c *CallbackContext, log logging.Logger) error {
	err := e.callbacks.ExecuteCallbacks(ctx, typ, c)
	if err != nil {
		log.Warn("engine.callback.failed", "type", string(typ), "error", err)
	}
	return err
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stepRun is the state of one step execution.
type stepRun struct {
	exec        *Executor
	sess        *core.Session
	step        core.StepDef
	ia          core.Interaction
	coordinator core.Agent
	inputs      map[string]any
	// previous is the last participant output or observation; nil before the first turn.
	previous  any
	limiter   *core.InteractionLimiter
	humanDone map[string]bool
	logger    logging.Logger
}

func (r *stepRun) run(ctx context.Context) {
	outcome := OutcomeCeiling
	started := time.Now()

	defer func() {
		r.finish(ctx, outcome, time.Since(started))
	}()

	if err := r.exec.fire(ctx, CallbackBeforeStep, r.callbackCtx(r.ia.Coordinator), r.logger); err != nil {
		outcome = OutcomeVetoed
		r.sess.Send(fmt.Sprintf("Step '%s' was not started: %v", r.step.Name, err))
		return
	}

	r.logger.Info("engine.step.start", "participants", r.step.Participants, "ceiling", r.limiter.Max())

	for {
		if ctx.Err() != nil {
			outcome = OutcomeCancelled
			r.logger.Warn("engine.step.cancelled", "turns", r.limiter.Count())
			return
		}
		if err := r.limiter.Increment(); err != nil {
			r.logger.Warn("engine.step.ceiling", "turns", r.limiter.Count(), "error", err)
			r.sess.Send(fmt.Sprintf("Interaction limit of %d turns reached. Step '%s' stopped.", r.limiter.Max(), r.step.Name))
			return
		}
		if r.turn(ctx, r.limiter.Count()) {
			outcome = OutcomeDone
			r.conclude(ctx)
			return
		}
	}
}

// turn runs one coordinator decision and the participant it addresses. It
// reports true once the coordinator marks the step done.
func (r *stepRun) turn(ctx context.Context, n int) bool {
	log := logging.With(r.logger, "turn", n)
	log.Info("engine.turn.start")
	r.sess.SetPhase(core.PhaseStepActive)

	prompt, err := json.Marshal(map[string]any{"input": r.inputs, "previous_response": r.previous})
	if err != nil {
		prompt = []byte(fmt.Sprintf(`{"input": %q, "previous_response": %q}`, fmt.Sprint(r.inputs), fmt.Sprint(r.previous)))
	}

	began := time.Now()
	decision, err := r.stepWithRetry(ctx, r.coordinator, core.UserMessage(string(prompt)), log)
	r.afterTurn(ctx, r.coordinator, n, decision, err, time.Since(began))
	if err != nil {
		r.observe(fmt.Sprintf("Turn failed for %s: %v", r.coordinator.Name(), err))
		r.sess.TakeSnapshot()
		return false
	}

	r.sess.Send(decision)
	r.sess.AppendConversation(r.coordinator.Name(), decision)

	if strings.Contains(decision, core.TaskDoneMarker) {
		log.Info("engine.step.done")
		r.sess.TakeSnapshot()
		return true
	}

	ins, err := agent.ParseInstruction(decision)
	if err != nil {
		log.Warn("engine.instruction.invalid", "error", err)
	}
	name := ins.Action
	participant, ok := r.sess.Agent(name)
	if !ok || name == r.coordinator.Name() {
		log.Info("engine.instruction.unknown_agent", "action", name)
		r.observe(fmt.Sprintf("Assistant name unknown. Context: %v", r.contextText()))
		r.sess.TakeSnapshot()
		return false
	}

	message := r.compose(ins)
	r.sess.AppendConversation("Assistant", message)

	var output string
	if participant.Kind() == core.KindHuman {
		output = r.humanTurn(ctx, n, participant, ins, log)
	} else {
		output = r.agentTurn(ctx, n, participant, message, log)
	}

	r.sess.Send(output)
	r.sess.AppendConversation(name, output)
	r.inputs["previous_response"] = output
	r.previous = output
	r.sess.TakeSnapshot()
	return false
}

// agentTurn runs an LLM participant and, when the step maps it to a critic,
// the review loop on its output.
func (r *stepRun) agentTurn(ctx context.Context, n int, a core.Agent, message string, log logging.Logger) string {
	r.sess.SetPhase(core.PhaseAgentTurn)

	if err := r.exec.fire(ctx, CallbackBeforeTurn, r.turnCtx(a, n), log); err != nil {
		return fmt.Sprintf("Turn failed for %s: %v", a.Name(), err)
	}

	began := time.Now()
	output, err := r.stepWithRetry(ctx, a, core.UserMessage(message), log)
	r.afterTurn(ctx, a, n, output, err, time.Since(began))
	if err != nil {
		return fmt.Sprintf("Turn failed for %s: %v", a.Name(), err)
	}

	criticName, ok := r.step.Critics[a.Name()]
	if !ok {
		return output
	}
	critic, ok := r.sess.Agent(criticName)
	if !ok {
		log.Warn("engine.critic.not_found", "agent", a.Name(), "critic", criticName)
		return output
	}
	return r.criticLoop(ctx, n, a, critic, output, log)
}

func (r *stepRun) criticLoop(ctx context.Context, n int, producer, critic core.Agent, output string, log logging.Logger) string {
	r.sess.SetPhase(core.PhaseCriticLoop)

	loop := agent.NewCriticLoop(producer, critic,
		agent.WithMaxRounds(r.ia.CriticIterations),
		agent.WithAcceptanceMarker(r.ia.AcceptanceMarker),
		agent.WithCriticLogger(log),
		agent.WithStepFunc(func(ctx context.Context, a core.Agent, msg core.Message) (string, error) {
			return r.stepWithRetry(ctx, a, msg, log)
		}),
	)

	began := time.Now()
	res, err := loop.Run(ctx, output)
	if err != nil {
		log.Warn("engine.critic.failed", "critic", critic.Name(), "error", err)
	}
	if res.Feedback != "" {
		r.sess.AppendConversation(critic.Name(), res.Feedback)
	}

	c := r.turnCtx(critic, n)
	c.Output = res.Output
	c.Err = err
	c.Duration = time.Since(began)
	c.Outcome = string(res.ExitReason)
	c.Rounds = res.Rounds
	_ = r.exec.fire(ctx, CallbackAfterCritic, c, log)

	return res.Output
}

// humanTurn obtains a human participant's reply. A message already queued
// by the client is consumed without waiting; otherwise the task is announced
// and the executor waits on the session rendezvous until the interaction's
// human timeout. A timeout yields an empty reply.
func (r *stepRun) humanTurn(ctx context.Context, n int, h core.Agent, ins agent.Instruction, log logging.Logger) string {
	name := h.Name()
	if r.humanDone[name] {
		log.Debug("engine.human.finished", "agent", name)
		return fmt.Sprintf("%s has no further input. Continue without %s.", name, name)
	}

	r.sess.SetPhase(core.PhaseAwaitingHuman)
	if err := r.exec.fire(ctx, CallbackBeforeTurn, r.turnCtx(h, n), log); err != nil {
		return fmt.Sprintf("Turn failed for %s: %v", name, err)
	}

	began := time.Now()
	reply, outcome := r.awaitHuman(ctx, name, ins, log)
	if strings.TrimSpace(reply) == core.HumanDoneMarker {
		r.humanDone[name] = true
		outcome = HumanOutcomeFinished
		reply = fmt.Sprintf("%s has finished answering questions.", name)
	}

	output, err := h.Step(ctx, core.UserMessage(reply))
	if err != nil {
		log.Warn("engine.human.record_failed", "agent", name, "error", err)
		output = reply
	}

	c := r.turnCtx(h, n)
	c.Output = output
	c.Duration = time.Since(began)
	c.Outcome = outcome
	_ = r.exec.fire(ctx, CallbackAfterHumanWait, c, log)

	return output
}

func (r *stepRun) awaitHuman(ctx context.Context, name string, ins agent.Instruction, log logging.Logger) (string, string) {
	if queued, ok := r.sess.Tasks().TryDequeue(); ok {
		log.Info("engine.human.queued", "agent", name)
		return queued, HumanOutcomeQueued
	}

	rv := r.sess.Human()
	if err := rv.Expect(name); err != nil {
		log.Warn("engine.human.stale_wait", "error", err)
		rv.Cancel()
		_ = rv.Expect(name)
	}
	r.sess.MapUser(r.sess.UserID(), name)
	r.sess.Send(fmt.Sprintf("Task assigned to %s: %s", name, ins.ActionInput))
	log.Info("engine.human.waiting", "agent", name, "timeout", r.ia.HumanTimeout)

	reply, ok := rv.Wait(ctx, r.ia.HumanTimeout)
	if !ok {
		log.Warn("engine.human.timeout", "agent", name)
		return "", HumanOutcomeTimeout
	}
	log.Info("engine.human.replied", "agent", name)
	return reply, HumanOutcomeReplied
}

// stepWithRetry runs one agent step, retrying once with the same input.
func (r *stepRun) stepWithRetry(ctx context.Context, a core.Agent, msg core.Message, log logging.Logger) (string, error) {
	out, err := a.Step(ctx, msg)
	if err == nil {
		return out, nil
	}
	log.Warn("engine.turn.failed", "agent", a.Name(), "attempt", 1, "error", err)
	if ctx.Err() != nil {
		return "", err
	}
	if serr := sleep(ctx, r.exec.config.RetryBackoff); serr != nil {
		return "", err
	}

	out, err = a.Step(ctx, msg)
	if err != nil {
		log.Error("engine.turn.failed", "agent", a.Name(), "attempt", 2, "error", err)
		return "", err
	}
	return out, nil
}

// conclude asks the coordinator for its final answer.
func (r *stepRun) conclude(ctx context.Context) {
	r.sess.SetPhase(core.PhaseStepComplete)
	final, err := r.stepWithRetry(ctx, r.coordinator, core.UserMessage(FinalAnswerPrompt), r.logger)
	if err != nil {
		r.logger.Error("engine.final_answer.failed", "error", err)
		return
	}
	r.sess.Send(final)
	r.sess.AppendConversation(r.coordinator.Name(), final)
	r.sess.TakeSnapshot()
}

// finish ends every active agent and releases the session.
func (r *stepRun) finish(ctx context.Context, outcome string, elapsed time.Duration) {
	r.sess.SetPhase(core.PhaseStepComplete)

	// End commits memory; run it even when the step was cancelled.
	endCtx := context.WithoutCancel(ctx)
	agents := r.sess.Agents()
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)
	var usage core.Usage
	for _, name := range names {
		if u := agents[name].State().Usage; u != nil {
			usage = usage.Add(*u)
		}
		if err := agents[name].End(endCtx); err != nil {
			r.logger.Error("engine.agent.end_failed", "agent", name, "error", err)
		}
	}

	r.sess.SetStarted(false)
	r.sess.SetPhase(core.PhaseSessionDone)
	r.logger.Info("engine.step.finish", "outcome", outcome, "turns", r.limiter.Count(), "elapsed", elapsed)

	c := r.callbackCtx(r.ia.Coordinator)
	c.Turn = r.limiter.Count()
	c.Duration = elapsed
	c.Outcome = outcome
	c.Usage = usage
	_ = r.exec.fire(endCtx, CallbackAfterStep, c, r.logger)
}

// compose builds the instruction handed to a participant.
func (r *stepRun) compose(ins agent.Instruction) string {
	var history strings.Builder
	for _, ev := range r.sess.Conversation() {
		fmt.Fprintf(&history, "\n- %s: %s", ev.Author, ev.Content)
	}

	inputs, err := json.Marshal(r.inputs)
	if err != nil {
		inputs = []byte(fmt.Sprint(r.inputs))
	}

	return fmt.Sprintf("Instruction: %s\nThought: %s\nAction Input: %s\nConversation History:%s\nInput: %s\nPrevious response: %s",
		ins.Question, ins.Thought, ins.ActionInput, history.String(), inputs, r.contextText())
}

func (r *stepRun) contextText() string {
	if r.previous == nil {
		return "None"
	}
	return fmt.Sprint(r.previous)
}

// observe records an observation for the coordinator's next turn.
func (r *stepRun) observe(text string) {
	r.previous = text
	r.inputs["previous_response"] = text
}

func (r *stepRun) afterTurn(ctx context.Context, a core.Agent, n int, output string, err error, d time.Duration) {
	c := r.turnCtx(a, n)
	c.Output = output
	c.Err = err
	c.Duration = d
	_ = r.exec.fire(ctx, CallbackAfterTurn, c, r.logger)
}

func (r *stepRun) callbackCtx(agentName string) *CallbackContext {
	return &CallbackContext{UserID: r.sess.UserID(), Step: r.step.Name, Agent: agentName}
}

func (r *stepRun) turnCtx(a core.Agent, n int) *CallbackContext {
	c := r.callbackCtx(a.Name())
	c.Kind = a.Kind()
	c.Turn = n
	return c
}
