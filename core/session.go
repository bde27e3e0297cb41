package core

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentroom/logging"
)

// DefaultOutboxSize is the default capacity of a session's outbound queue.
const DefaultOutboxSize = 256

// Session is the per-user orchestration state. It outlives any single client
// channel and is safe for concurrent access.
//
// Contract:
//   - Getters return defensive copies of maps and slices
//   - Snapshots are appended only, never mutated
//   - At most one human wait is outstanding (see HumanRendezvous)
//   - Send never blocks; when the outbox is full the oldest message is dropped
type Session struct {
	userID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.RWMutex
	agents        map[string]Agent
	catalogue     map[string]Agent
	userToAgent   map[string]string
	started       bool
	globalChannel string
	scenario      string
	variables     Variables
	interaction   Interaction

	configRequested bool
	configSet       bool
	stepRequested   bool
	stepOptions     []string
	sync            bool

	step         string
	phase        Phase
	snapshots    []Snapshot
	conversation []Event

	created  time.Time
	lastSeen time.Time
	attached int

	tasks  *TaskQueue
	human  *HumanRendezvous
	outbox chan string

	// messages a writer failed to deliver, sent before the outbox
	pendingMu   sync.Mutex
	pending     []string
	redelivered chan struct{}

	*loggerAdapter
}

// SessionOptions configures NewSession.
type SessionOptions struct {
	// Context is the parent of the session context (Background if nil).
	Context context.Context
	// OutboxSize bounds the outbound queue (DefaultOutboxSize if <= 0).
	OutboxSize int
	Logger     logging.Logger
}

// NewSession creates the state for userID. The user id doubles as the
// session's global channel.
func NewSession(userID string, optFns ...func(o *SessionOptions)) *Session {
	opts := SessionOptions{Context: context.Background(), OutboxSize: DefaultOutboxSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}

	ctx, cancel := context.WithCancel(opts.Context)
	now := time.Now()

	return &Session{
		userID:        userID,
		ctx:           ctx,
		cancel:        cancel,
		agents:        map[string]Agent{},
		catalogue:     map[string]Agent{},
		userToAgent:   map[string]string{},
		globalChannel: userID,
		interaction:   Interaction{}.WithDefaults(),
		created:       now,
		lastSeen:      now,
		tasks:         NewTaskQueue(),
		human:         NewHumanRendezvous(),
		outbox:        make(chan string, opts.OutboxSize),
		redelivered:   make(chan struct{}, 1),
		loggerAdapter: newLoggerAdapter(logging.With(opts.Logger, "user_id", userID)),
	}
}

// UserID returns the owning user identifier.
func (s *Session) UserID() string { return s.userID }

// Context is cancelled when the session is closed.
func (s *Session) Context() context.Context { return s.ctx }

// Go runs fn in a goroutine bound to the session context. Close waits for it.
func (s *Session) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Close cancels the session context and waits for in-flight work started via Go.
func (s *Session) Close() {
	s.cancel()
	s.human.Cancel()
	s.wg.Wait()
}

// Created returns the session creation time.
func (s *Session) Created() time.Time { return s.created }

// Tasks returns the session task queue.
func (s *Session) Tasks() *TaskQueue { return s.tasks }

// Human returns the human-reply rendezvous.
func (s *Session) Human() *HumanRendezvous { return s.human }

// Send enqueues text for delivery to the client channel.
func (s *Session) Send(text string) {
	for {
		select {
		case s.outbox <- text:
			return
		default:
		}
		select {
		case dropped := <-s.outbox:
			s.LogWarn("session.outbox.full", "dropped_len", len(dropped))
		default:
		}
	}
}

// Outbox is drained by the gateway writer of the currently attached channel.
func (s *Session) Outbox() <-chan string { return s.outbox }

// Redeliver puts back a message a writer took from the outbox but could not
// deliver. Pending messages keep their order and are handed out by
// TakePending ahead of anything still queued in the outbox.
func (s *Session) Redeliver(text string) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, text)
	s.pendingMu.Unlock()
	select {
	case s.redelivered <- struct{}{}:
	default:
	}
}

// TakePending pops the oldest message put back by Redeliver.
func (s *Session) TakePending() (string, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	text := s.pending[0]
	s.pending = s.pending[1:]
	return text, true
}

// Redelivered signals that Redeliver added a pending message.
func (s *Session) Redelivered() <-chan struct{} { return s.redelivered }

// Touch records client activity.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen returns the time of the last client activity.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Attach registers a duplex channel and returns the attached count.
func (s *Session) Attach() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached++
	s.lastSeen = time.Now()
	return s.attached
}

// Detach unregisters a duplex channel and returns the attached count.
func (s *Session) Detach() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached > 0 {
		s.attached--
	}
	s.lastSeen = time.Now()
	return s.attached
}

// Attached returns the number of attached duplex channels.
func (s *Session) Attached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attached
}

// Configure installs a resolved scenario: its agent catalogue, variables and
// interaction limits. Configuration requests are cleared.
func (s *Session) Configure(scenario string, catalogue map[string]Agent, vars Variables, interaction Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario = scenario
	s.catalogue = make(map[string]Agent, len(catalogue))
	for k, v := range catalogue {
		s.catalogue[k] = v
	}
	s.variables = vars
	s.interaction = interaction.WithDefaults()
	s.agents = map[string]Agent{}
	s.configRequested = false
	s.configSet = true
}

// Scenario returns the configured scenario name.
func (s *Session) Scenario() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenario
}

// Variables returns the scenario variables.
func (s *Session) Variables() Variables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.variables
}

// Interaction returns the interaction limits.
func (s *Session) Interaction() Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interaction
}

// CatalogueAgent looks up an agent of the configured scenario.
func (s *Session) CatalogueAgent(name string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.catalogue[name]
	return a, ok
}

// Catalogue returns a copy of the scenario's agent catalogue.
func (s *Session) Catalogue() map[string]Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Agent, len(s.catalogue))
	for k, v := range s.catalogue {
		out[k] = v
	}
	return out
}

// SetAgent installs an active agent for the running step.
func (s *Session) SetAgent(name string, a Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[name] = a
}

// Agent returns an active agent.
func (s *Session) Agent(name string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[name]
	return a, ok
}

// Agents returns a copy of the active agents.
func (s *Session) Agents() map[string]Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Agent, len(s.agents))
	for k, v := range s.agents {
		out[k] = v
	}
	return out
}

// ClearAgents drops all active agents.
func (s *Session) ClearAgents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = map[string]Agent{}
}

// MapUser records which agent a user addresses.
func (s *Session) MapUser(userID, agentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userToAgent[userID] = agentName
}

// UserToAgent returns a copy of the user → agent mapping.
func (s *Session) UserToAgent() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.userToAgent))
	for k, v := range s.userToAgent {
		out[k] = v
	}
	return out
}

// TryStart marks the session started. It reports false if it already was.
func (s *Session) TryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

// Started reports whether a step is running.
func (s *Session) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// SetStarted sets the started flag.
func (s *Session) SetStarted(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = v
}

// GlobalChannel returns the broadcast channel identifier.
func (s *Session) GlobalChannel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalChannel
}

// SetGlobalChannel sets the broadcast channel identifier.
func (s *Session) SetGlobalChannel(ch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalChannel = ch
}

// ConfigRequested reports whether a configuration choice is awaited.
func (s *Session) ConfigRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configRequested
}

// SetConfigRequested sets the configuration choice flag.
func (s *Session) SetConfigRequested(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configRequested = v
}

// ConfigSet reports whether a scenario has been configured.
func (s *Session) ConfigSet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configSet
}

// RequestStep blocks the session on a step choice among options.
func (s *Session) RequestStep(options []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepRequested = true
	s.stepOptions = append([]string(nil), options...)
}

// StepRequested reports whether a step choice is awaited.
func (s *Session) StepRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stepRequested
}

// StepOptions returns the offered step names.
func (s *Session) StepOptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.stepOptions...)
}

// ClearStepRequest marks the step choice as made.
func (s *Session) ClearStepRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepRequested = false
}

// Sync reports whether the last client used the request/response endpoint.
func (s *Session) Sync() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sync
}

// SetSync records the kind of the last client.
func (s *Session) SetSync(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync = v
}

// Phase returns the executor phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase records the executor phase.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// CurrentStep returns the running step name.
func (s *Session) CurrentStep() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// SetCurrentStep records the running step name.
func (s *Session) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
}

// AppendConversation records a conversation entry and returns it.
func (s *Session) AppendConversation(author, content string) Event {
	ev := NewEvent(author, content)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, ev)
	return ev
}

// Conversation returns a copy of the conversation history.
func (s *Session) Conversation() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// TakeSnapshot captures every active agent's state and appends it to history.
func (s *Session) TakeSnapshot() Snapshot {
	agents := s.Agents()

	states := make(map[string]AgentState, len(agents))
	for name, a := range agents {
		states[name] = a.State().Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userToAgent := make(map[string]string, len(s.userToAgent))
	for k, v := range s.userToAgent {
		userToAgent[k] = v
	}
	snap := Snapshot{
		Timestamp:   time.Now().UTC(),
		Step:        s.step,
		Phase:       s.phase,
		Agents:      states,
		UserToAgent: userToAgent,
		Interaction: s.interaction,
	}
	s.snapshots = append(s.snapshots, snap)
	s.LogDebug("session.snapshot", "step", s.step, "agents", len(states), "history", len(s.snapshots))
	return snap.Clone()
}

// Snapshots returns the snapshot history in order.
func (s *Session) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = snap.Clone()
	}
	return out
}
