package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
)

// ErrNoConfigurations is returned by Start when the catalogue is empty.
var ErrNoConfigurations = errors.New("no configurations available")

// Commands understood by the runner. Matching is case-insensitive.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Resolver turns a configuration name into a ready-to-install scenario.
type Resolver interface {
	// Names lists the available configurations in presentation order.
	Names() []string
	// Resolve loads, validates and builds the named configuration.
	Resolve(ctx context.Context, name string) (*core.Setup, error)
}

// Sessions hands out per-user sessions.
type Sessions interface {
	GetOrCreate(userID string) (*core.Session, bool)
}

// Options holds dependency overrides passed to New.
type Options struct {
	Logger logging.Logger
}

// Runner routes client text to the owning session: it drives the start,
// configuration and step choice dialogue, delivers human replies, queues
// input for the next human turn and launches steps on the executor.
// Public methods are safe for concurrent use.
type Runner struct {
	sessions Sessions
	resolver Resolver
	executor core.StepExecutor
	logger   logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

var _ core.MessageHandler = (*Runner)(nil)

// New constructs a Runner.
func New(sessions Sessions, resolver Resolver, executor core.StepExecutor, optFns ...func(o *Options)) *Runner {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{
		sessions:   sessions,
		resolver:   resolver,
		executor:   executor,
		logger:     logging.With(opts.Logger, "component", "runner"),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

func ack(msg string) core.Ack    { return core.Ack{Message: msg, OK: true} }
func reject(msg string) core.Ack { return core.Ack{Message: msg, OK: false} }

// Handle processes one client submission for userID. sync marks a
// request/response client. Agent output is delivered through the session
// outbox; the returned Ack only acknowledges the submission.
func (r *Runner) Handle(ctx context.Context, userID, text string, sync bool) core.Ack {
	text = strings.TrimSpace(text)
	if text == core.KeepAliveToken {
		return ack("")
	}

	sess, created := r.sessions.GetOrCreate(userID)
	if created {
		r.logger.Debug("runner.session.created", "user_id", userID)
	}
	sess.Touch()
	sess.SetSync(sync)

	log := logging.With(r.logger, "user_id", userID)
	command := strings.ToLower(text)
	stopping := command == CommandStop && sess.Started()

	if expected := sess.Human().Expected(); expected != "" && !stopping {
		if sess.Human().Deliver(text) {
			log.Info("runner.human.delivered", "agent", expected)
			return ack("Human agent response received.")
		}
	}

	switch {
	case command == CommandStart:
		return r.start(sess, log)
	case stopping:
		return r.stop(sess, log)
	case sess.ConfigRequested():
		return r.chooseConfiguration(ctx, sess, command, log)
	case sess.StepRequested():
		return r.chooseStep(sess, command, log)
	case !sess.ConfigSet():
		sess.Send("Please start by typing 'start' and choosing a configuration.")
		return reject("Start not initiated properly.")
	case sess.Started():
		sess.Tasks().Enqueue(text)
		log.Debug("runner.input.queued", "pending", sess.Tasks().Len())
		return ack("Message queued for the next human turn.")
	default:
		sess.Send("Received message: " + text)
		return ack("Message processed.")
	}
}

// Start offers the configuration catalogue to the session's user.
func (r *Runner) Start(sess *core.Session) error {
	if sess.ConfigRequested() || sess.ConfigSet() {
		sess.Send("Configuration is already in progress or set.")
		return nil
	}
	names := r.resolver.Names()
	if len(names) == 0 {
		sess.Send("No configurations available.")
		return ErrNoConfigurations
	}
	sess.Send("Please choose a configuration by typing the corresponding number:\n" + numbered(names))
	sess.SetConfigRequested(true)
	sess.SetGlobalChannel(sess.UserID())
	return nil
}

func (r *Runner) start(sess *core.Session, log logging.Logger) core.Ack {
	requested, set := sess.ConfigRequested(), sess.ConfigSet()
	if err := r.Start(sess); err != nil {
		log.Warn("runner.start.failed", "error", err)
		return reject("No configurations found.")
	}
	if requested || set {
		return ack("Configuration already in progress or set.")
	}
	return ack("Configuration choice requested.")
}

func (r *Runner) stop(sess *core.Session, log logging.Logger) core.Ack {
	if !r.Cancel(sess.UserID()) {
		return reject("No step is running.")
	}
	sess.Human().Cancel()
	log.Info("runner.step.stop_requested")
	sess.Send("Stopping the running step.")
	return ack("Stop requested.")
}

func (r *Runner) chooseConfiguration(ctx context.Context, sess *core.Session, input string, log logging.Logger) core.Ack {
	names := r.resolver.Names()
	choice, err := strconv.Atoi(input)
	if err != nil {
		sess.Send("Invalid input. Please enter a number corresponding to the configuration.")
		return ack("Configuration choice processed.")
	}
	if choice < 1 || choice > len(names) {
		sess.Send("Invalid choice. Please try again.")
		return ack("Configuration choice processed.")
	}

	name := names[choice-1]
	setup, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		log.Error("runner.configuration.failed", "configuration", name, "error", err)
		sess.SetConfigRequested(false)
		sess.Send(fmt.Sprintf("Configuration error: %v", err))
		return reject(fmt.Sprintf("Configuration '%s' could not be loaded.", name))
	}

	sess.Configure(setup.Scenario, setup.Agents, setup.Variables, setup.Interaction)
	log.Info("runner.configuration.set", "configuration", name, "agents", len(setup.Agents))

	steps := setup.Variables.StepNames()
	switch len(steps) {
	case 0:
		sess.Send("No steps available in the selected configuration.")
		return reject("No steps found in configuration.")
	case 1:
		sess.SetGlobalChannel(sess.UserID())
		if !r.launch(sess, steps[0], log) {
			return reject("Process already running.")
		}
		return ack(fmt.Sprintf("Process for '%s' and step '%s' started.", name, steps[0]))
	default:
		sess.Send("Please choose a step to start by typing the corresponding number:\n" + numbered(steps))
		sess.RequestStep(steps)
		sess.SetGlobalChannel(sess.UserID())
		return ack("Step choice requested.")
	}
}

func (r *Runner) chooseStep(sess *core.Session, input string, log logging.Logger) core.Ack {
	steps := sess.StepOptions()
	choice, err := strconv.Atoi(input)
	if err != nil {
		sess.Send("Invalid input. Please enter a number corresponding to the step.")
		return reject("Invalid step input.")
	}
	if choice < 1 || choice > len(steps) {
		sess.Send("Invalid step choice. Please try again.")
		return reject("Invalid step choice.")
	}

	step := steps[choice-1]
	sess.ClearStepRequest()
	sess.SetGlobalChannel(sess.UserID())
	if !r.launch(sess, step, log) {
		return reject("Process already running.")
	}
	return ack(fmt.Sprintf("Step '%s' started.", step))
}

// launch runs step on the executor in a goroutine bound to the session. It
// reports false when a step is already running.
func (r *Runner) launch(sess *core.Session, step string, log logging.Logger) bool {
	if !sess.TryStart() {
		return false
	}

	userID := sess.UserID()
	ctx, cancel := context.WithCancel(sess.Context())
	r.mu.Lock()
	r.activeRuns[userID] = cancel
	r.mu.Unlock()

	sess.Go(func(context.Context) {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, userID)
			r.mu.Unlock()
		}()

		log.Info("runner.step.start", "step", step)
		if err := r.executor.Execute(ctx, sess, step); err != nil {
			log.Error("runner.step.failed", "step", step, "error", err)
		}
		// a failed resolution must not leave the session locked
		sess.SetStarted(false)
	})
	return true
}

// Cancel stops the step running for userID. It reports false when nothing runs.
func (r *Runner) Cancel(userID string) bool {
	r.mu.Lock()
	cancel, ok := r.activeRuns[userID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func numbered(options []string) string {
	lines := make([]string, len(options))
	for i, o := range options {
		lines[i] = fmt.Sprintf("%d. %s", i+1, o)
	}
	return strings.Join(lines, "\n")
}
