package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	name  string
	short []Message
}

func (a *stubAgent) Name() string { return a.name }
func (a *stubAgent) Role() string { return a.name }
func (a *stubAgent) Kind() Kind   { return KindLLM }
func (a *stubAgent) Step(_ context.Context, in Message) (string, error) {
	a.short = append(a.short, in)
	return in.Content, nil
}
func (a *stubAgent) State() AgentState {
	return AgentState{Name: a.name, Role: a.name, Kind: KindLLM, ShortTerm: CloneMessages(a.short)}
}
func (a *stubAgent) Clone(context.Context) (Agent, error) {
	return &stubAgent{name: a.name, short: CloneMessages(a.short)}, nil
}
func (a *stubAgent) Reset()                    { a.short = nil }
func (a *stubAgent) End(context.Context) error { return nil }

func TestSession_Defaults(t *testing.T) {
	s := NewSession("u1")
	assert.Equal(t, "u1", s.UserID())
	assert.Equal(t, "u1", s.GlobalChannel())
	assert.False(t, s.Started())
	assert.False(t, s.ConfigSet())
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, DefaultInteractionSteps, s.Interaction().Steps)
	assert.Equal(t, DefaultHumanTimeout, s.Interaction().HumanTimeout)
}

func TestSession_TryStartOnce(t *testing.T) {
	s := NewSession("u1")
	assert.True(t, s.TryStart())
	assert.False(t, s.TryStart())
	s.SetStarted(false)
	assert.True(t, s.TryStart())
}

func TestSession_ConfigureClearsRequest(t *testing.T) {
	s := NewSession("u1")
	s.SetConfigRequested(true)

	a := &stubAgent{name: "ChatManager"}
	s.Configure("stock", map[string]Agent{"ChatManager": a}, Variables{
		Steps: []StepDef{{Name: "research"}, {Name: "write"}},
	}, Interaction{Steps: 5})

	assert.True(t, s.ConfigSet())
	assert.False(t, s.ConfigRequested())
	assert.Equal(t, "stock", s.Scenario())
	assert.Equal(t, 5, s.Interaction().Steps)
	assert.Equal(t, DefaultCriticIterations, s.Interaction().CriticIterations)
	assert.Equal(t, []string{"research", "write"}, s.Variables().StepNames())

	got, ok := s.CatalogueAgent("ChatManager")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestSession_CopiesAreIsolated(t *testing.T) {
	s := NewSession("u1")
	s.SetAgent("A", &stubAgent{name: "A"})
	s.MapUser("u1", "A")
	s.RequestStep([]string{"one", "two"})

	agents := s.Agents()
	delete(agents, "A")
	_, ok := s.Agent("A")
	assert.True(t, ok)

	m := s.UserToAgent()
	m["u1"] = "B"
	assert.Equal(t, "A", s.UserToAgent()["u1"])

	opts := s.StepOptions()
	opts[0] = "changed"
	assert.Equal(t, "one", s.StepOptions()[0])
}

func TestSession_SnapshotsAreImmutable(t *testing.T) {
	s := NewSession("u1")
	a := &stubAgent{name: "A"}
	s.SetAgent("A", a)
	s.SetCurrentStep("research")
	s.SetPhase(PhaseAgentTurn)

	_, err := a.Step(context.Background(), UserMessage("hello"))
	require.NoError(t, err)
	first := s.TakeSnapshot()

	_, err = a.Step(context.Background(), UserMessage("again"))
	require.NoError(t, err)
	s.TakeSnapshot()

	history := s.Snapshots()
	require.Len(t, history, 2)
	assert.Equal(t, "research", first.Step)
	assert.Equal(t, PhaseAgentTurn, first.Phase)
	assert.Len(t, history[0].Agents["A"].ShortTerm, 1)
	assert.Len(t, history[1].Agents["A"].ShortTerm, 2)

	history[0].Step = "mutated"
	history[0].Agents["A"] = AgentState{Name: "forged"}
	history[0].Agents["B"] = AgentState{Name: "injected"}
	history[1].Agents["A"].ShortTerm[0].Content = "rewritten"
	history[1].UserToAgent["u1"] = "B"
	first.Agents["A"] = AgentState{Name: "forged"}

	fresh := s.Snapshots()
	assert.Equal(t, "research", fresh[0].Step)
	require.Len(t, fresh[0].Agents, 1)
	assert.Equal(t, "A", fresh[0].Agents["A"].Name)
	assert.Equal(t, "hello", fresh[1].Agents["A"].ShortTerm[0].Content)
	assert.NotContains(t, fresh[1].UserToAgent, "u1")
}

func TestSession_SendDropsOldestWhenFull(t *testing.T) {
	s := NewSession("u1", func(o *SessionOptions) { o.OutboxSize = 2 })
	s.Send("one")
	s.Send("two")
	s.Send("three")

	assert.Equal(t, "two", <-s.Outbox())
	assert.Equal(t, "three", <-s.Outbox())
}

func TestSession_RedeliverKeepsOrder(t *testing.T) {
	s := NewSession("u1")
	_, ok := s.TakePending()
	assert.False(t, ok)

	s.Redeliver("a")
	s.Redeliver("b")
	select {
	case <-s.Redelivered():
	default:
		t.Fatal("expected redelivery signal")
	}

	first, ok := s.TakePending()
	require.True(t, ok)
	second, _ := s.TakePending()
	assert.Equal(t, []string{"a", "b"}, []string{first, second})
	_, ok = s.TakePending()
	assert.False(t, ok)
}

func TestSession_AttachDetach(t *testing.T) {
	s := NewSession("u1")
	assert.Equal(t, 1, s.Attach())
	assert.Equal(t, 2, s.Attach())
	assert.Equal(t, 1, s.Detach())
	assert.Equal(t, 0, s.Detach())
	assert.Equal(t, 0, s.Detach())
}

func TestSession_CloseWaitsForWork(t *testing.T) {
	s := NewSession("u1")
	finished := make(chan struct{})
	s.Go(func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		close(finished)
	})
	s.Close()
	select {
	case <-finished:
	default:
		t.Fatal("Close returned before in-flight work completed")
	}
}

func TestSession_Conversation(t *testing.T) {
	s := NewSession("u1")
	ev := s.AppendConversation("ChatManager", "hi")
	assert.NotEmpty(t, ev.ID)
	conv := s.Conversation()
	require.Len(t, conv, 1)
	conv[0].Content = "changed"
	assert.Equal(t, "hi", s.Conversation()[0].Content)
}

func TestTaskQueue_FIFO(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	assert.Equal(t, 2, q.Len())

	v, ok := q.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	v, _ = q.TryDequeue()
	assert.Equal(t, "b", v)
	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestHumanRendezvous_DeliverExactlyOnce(t *testing.T) {
	r := NewHumanRendezvous()
	assert.False(t, r.Deliver("nobody waits"))

	require.NoError(t, r.Expect("HumanAssistant"))
	assert.Equal(t, "HumanAssistant", r.Expected())
	assert.ErrorIs(t, r.Expect("Other"), ErrAlreadyAwaiting)

	assert.True(t, r.Deliver("Paris"))
	assert.False(t, r.Deliver("duplicate"))
	assert.Empty(t, r.Expected())

	reply, ok := r.Wait(context.Background(), time.Second)
	assert.True(t, ok)
	assert.Equal(t, "Paris", reply)
}

func TestHumanRendezvous_WaitReceivesConcurrentDelivery(t *testing.T) {
	r := NewHumanRendezvous()
	require.NoError(t, r.Expect("HumanAssistant"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		r.Deliver("answer")
	}()

	reply, ok := r.Wait(context.Background(), 2*time.Second)
	wg.Wait()
	assert.True(t, ok)
	assert.Equal(t, "answer", reply)
}

func TestHumanRendezvous_TimeoutReturnsEmpty(t *testing.T) {
	r := NewHumanRendezvous()
	require.NoError(t, r.Expect("HumanAssistant"))

	start := time.Now()
	reply, ok := r.Wait(context.Background(), time.Second)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Empty(t, reply)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
	assert.Empty(t, r.Expected())

	// a late reply is rejected and a fresh wait starts clean
	assert.False(t, r.Deliver("late"))
	require.NoError(t, r.Expect("HumanAssistant"))
}

func TestHumanRendezvous_ContextCancel(t *testing.T) {
	r := NewHumanRendezvous()
	require.NoError(t, r.Expect("HumanAssistant"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := r.Wait(ctx, time.Minute)
	assert.False(t, ok)
}
