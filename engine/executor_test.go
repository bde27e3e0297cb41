package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/internal/testutil"
)

func addressing(name, input string) string {
	return fmt.Sprintf(`{"Thought": "next", "Action": %q, "Action Input": %q, "Question": "Please help with: %s"}`, name, input, input)
}

func newTestExecutor(cbs ...Callback) *Executor {
	return New(func(o *Options) {
		o.Config = Config{}
		o.Callbacks = cbs
	})
}

func containsAny(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestExecute_FranceScenario(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("HumanAssistant", "What is your question?"),
		addressing("ResearchAssistant", "Answer the question"),
		"All questions answered. "+core.TaskDoneMarker,
		"Final Answer: Paris",
	)
	human := testutil.NewScriptedHuman("HumanAssistant")
	research := testutil.NewScriptedAgent("ResearchAssistant", "The capital of France is Paris.")

	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(human).Agent(research).
		Step("research", "HumanAssistant", "ResearchAssistant").
		Build()
	defer sess.Close()

	sess.Tasks().Enqueue("What is the capital of France?")

	err := newTestExecutor().Execute(context.Background(), sess, "research")
	require.NoError(t, err)

	// the queued message satisfied the human turn, no wait was announced
	out := testutil.Drain(sess)
	assert.False(t, containsAny(out, "Task assigned to"))
	assert.Equal(t, "", sess.Human().Expected())

	calls := research.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Content, "What is the capital of France?")

	assert.Contains(t, out, "The capital of France is Paris.")
	assert.Equal(t, "Final Answer: Paris", out[len(out)-1])

	snaps := sess.Snapshots()
	require.NotEmpty(t, snaps)
	found := false
	for _, s := range snaps {
		_, h := s.Agents["HumanAssistant"]
		_, r := s.Agents["ResearchAssistant"]
		if h && r && s.Step == "research" {
			found = true
		}
	}
	assert.True(t, found, "expected a snapshot with both agents")

	assert.False(t, sess.Started())
	assert.Equal(t, core.PhaseSessionDone, sess.Phase())
	assert.Equal(t, 1, human.Ends())
	assert.Equal(t, 1, research.Ends())
	assert.Equal(t, 1, manager.Ends())
}

func TestExecute_CeilingStopsStep(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator)
	manager.Fallback = addressing("ResearchAssistant", "keep going")
	research := testutil.NewScriptedAgent("ResearchAssistant")

	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(research).
		Step("research", "ResearchAssistant").
		Steps(5).
		Build()
	defer sess.Close()

	require.NoError(t, newTestExecutor().Execute(context.Background(), sess, "research"))

	assert.Len(t, manager.Calls(), 5)
	assert.Len(t, research.Calls(), 5)

	out := testutil.Drain(sess)
	assert.True(t, containsAny(out, "Interaction limit of 5 turns reached"))
	for _, c := range manager.Calls() {
		assert.NotEqual(t, FinalAnswerPrompt, c.Content)
	}
	assert.False(t, sess.Started())
}

func TestExecute_StepNotFound(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator)
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).
		Step("one").Step("two").
		Build()
	defer sess.Close()
	sess.SetStarted(true)

	err := newTestExecutor().Execute(context.Background(), sess, "three")
	require.ErrorIs(t, err, ErrStepNotFound)

	assert.False(t, sess.Started())
	assert.Contains(t, testutil.Drain(sess), "Configuration error: step 'three' is missing.")
	assert.Empty(t, manager.Calls())
}

func TestExecute_SingleStepAutoSelected(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator, core.TaskDoneMarker, "done")
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).
		Step("only").
		Build()
	defer sess.Close()

	require.NoError(t, newTestExecutor().Execute(context.Background(), sess, "whatever"))
	assert.Equal(t, "only", sess.CurrentStep())
}

func TestExecute_MissingCoordinator(t *testing.T) {
	sess := testutil.NewSessionBuilder("user-1").
		Agent(testutil.NewScriptedAgent("ResearchAssistant")).
		Step("research", "ResearchAssistant").
		Build()
	defer sess.Close()

	err := newTestExecutor().Execute(context.Background(), sess, "research")
	require.ErrorIs(t, err, ErrAgentNotFound)
}

func TestExecute_UnknownActionBecomesObservation(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("Nobody", "hello"),
		"not json at all",
		core.TaskDoneMarker,
		"final",
	)
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).
		Step("research").
		Build()
	defer sess.Close()

	require.NoError(t, newTestExecutor().Execute(context.Background(), sess, "research"))

	calls := manager.Calls()
	require.Len(t, calls, 4)
	assert.Contains(t, calls[1].Content, "Assistant name unknown. Context: None")
	assert.Contains(t, calls[2].Content, "Assistant name unknown. Context: Assistant name unknown")
	assert.Equal(t, FinalAnswerPrompt, calls[3].Content)
}

func TestExecute_TurnRetriedOnceThenObserved(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("ResearchAssistant", "first"),
		addressing("ResearchAssistant", "second"),
		core.TaskDoneMarker,
		"final",
	)
	research := testutil.NewScriptedAgent("ResearchAssistant").
		ThenFail(errors.New("boom")).
		ThenFail(errors.New("boom again")).
		ThenFail(errors.New("flaky")).
		Then("recovered")

	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(research).
		Step("research", "ResearchAssistant").
		Build()
	defer sess.Close()

	require.NoError(t, newTestExecutor().Execute(context.Background(), sess, "research"))

	assert.Len(t, research.Calls(), 4)
	out := testutil.Drain(sess)
	assert.Contains(t, out, "Turn failed for ResearchAssistant: boom again")
	assert.Contains(t, out, "recovered")

	// the failed turn's input is reused verbatim for the retry
	calls := research.Calls()
	assert.Equal(t, calls[0], calls[1])
	assert.Equal(t, calls[2], calls[3])
}

func TestExecute_HumanReplyThroughRendezvous(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("HumanAssistant", "Which city?"),
		core.TaskDoneMarker,
		"final",
	)
	human := testutil.NewScriptedHuman("HumanAssistant")
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(human).
		Step("ask", "HumanAssistant").
		Build()
	defer sess.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, newTestExecutor().Execute(context.Background(), sess, "ask"))
	}()

	require.Eventually(t, func() bool {
		return sess.Human().Expected() == "HumanAssistant"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, core.PhaseAwaitingHuman, sess.Phase())
	require.True(t, sess.Human().Deliver("Berlin"))
	wg.Wait()

	out := testutil.Drain(sess)
	assert.Contains(t, out, "Task assigned to HumanAssistant: Which city?")
	assert.True(t, containsAny(out, "Berlin"))
	assert.Equal(t, "HumanAssistant", sess.UserToAgent()["user-1"])
	assert.Contains(t, manager.Calls()[1].Content, "Berlin")
}

func TestExecute_HumanTimeoutIsEmptyReply(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("HumanAssistant", "Anyone there?"),
		core.TaskDoneMarker,
		"final",
	)
	human := testutil.NewScriptedHuman("HumanAssistant")
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(human).
		Step("ask", "HumanAssistant").
		Interaction(core.Interaction{HumanTimeout: 20 * time.Millisecond}).
		Build()
	defer sess.Close()

	var outcome string
	cb := NewFunctionCallback(CallbackAfterHumanWait, func(_ context.Context, c *CallbackContext) error {
		outcome = c.Outcome
		return nil
	})

	require.NoError(t, newTestExecutor(cb).Execute(context.Background(), sess, "ask"))

	assert.Equal(t, HumanOutcomeTimeout, outcome)
	assert.Equal(t, "", sess.Human().Expected())
	require.Len(t, human.Calls(), 1)
	assert.Equal(t, "", human.Calls()[0].Content)
	out := testutil.Drain(sess)
	assert.Equal(t, "final", out[len(out)-1])
}

func TestExecute_HumanDoneMarkerEndsQuestions(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("HumanAssistant", "More?"),
		addressing("HumanAssistant", "Still there?"),
		core.TaskDoneMarker,
		"final",
	)
	human := testutil.NewScriptedHuman("HumanAssistant")
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(human).
		Step("ask", "HumanAssistant").
		Build()
	defer sess.Close()
	sess.Tasks().Enqueue(core.HumanDoneMarker)

	require.NoError(t, newTestExecutor().Execute(context.Background(), sess, "ask"))

	// the second request is answered without waiting
	assert.Len(t, human.Calls(), 1)
	out := testutil.Drain(sess)
	assert.Contains(t, out, "HumanAssistant has no further input. Continue without HumanAssistant.")
	assert.False(t, containsAny(out, "Task assigned to"))
}

func TestExecute_CriticLoopCapped(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("Writer", "draft"),
		core.TaskDoneMarker,
		"final",
	)
	writer := testutil.NewScriptedAgent("Writer", "v1", "v2", "v3", "v4")
	reviewer := testutil.NewScriptedAgent("Reviewer")
	reviewer.Fallback = "needs work"

	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(writer).Agent(reviewer).
		Step("write", "Writer").
		Critic("Writer", "Reviewer").
		Interaction(core.Interaction{CriticIterations: 3}).
		Build()
	defer sess.Close()

	var rounds int
	var reason string
	cb := NewFunctionCallback(CallbackAfterCritic, func(_ context.Context, c *CallbackContext) error {
		rounds, reason = c.Rounds, c.Outcome
		return nil
	})

	require.NoError(t, newTestExecutor(cb).Execute(context.Background(), sess, "write"))

	assert.Len(t, reviewer.Calls(), 3)
	assert.Len(t, writer.Calls(), 3)
	assert.Equal(t, 3, rounds)
	assert.Equal(t, "max_rounds", reason)
	assert.Contains(t, testutil.Drain(sess), "v3")
}

func TestExecute_CriticAcceptance(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("Writer", "draft"),
		core.TaskDoneMarker,
		"final",
	)
	writer := testutil.NewScriptedAgent("Writer", "v1", "v2")
	reviewer := testutil.NewScriptedAgent("Reviewer", "fix the intro", "LGTM")

	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(writer).Agent(reviewer).
		Step("write", "Writer").
		Critic("Writer", "Reviewer").
		Interaction(core.Interaction{AcceptanceMarker: "LGTM"}).
		Build()
	defer sess.Close()

	require.NoError(t, newTestExecutor().Execute(context.Background(), sess, "write"))

	assert.Len(t, reviewer.Calls(), 2)
	assert.Contains(t, testutil.Drain(sess), "v2")
	assert.Contains(t, manager.Calls()[1].Content, "v2")
}

func TestExecute_CriticFailureRetriedOnce(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("Writer", "draft"),
		core.TaskDoneMarker,
		"final",
	)
	writer := testutil.NewScriptedAgent("Writer", "v1")
	reviewer := testutil.NewScriptedAgent("Reviewer")
	reviewer.ThenFail(errors.New("transient 503")).Then("LGTM")

	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(writer).Agent(reviewer).
		Step("write", "Writer").
		Critic("Writer", "Reviewer").
		Interaction(core.Interaction{CriticIterations: 3, AcceptanceMarker: "LGTM"}).
		Build()
	defer sess.Close()

	var rounds int
	var reason string
	cb := NewFunctionCallback(CallbackAfterCritic, func(_ context.Context, c *CallbackContext) error {
		rounds, reason = c.Rounds, c.Outcome
		return nil
	})

	require.NoError(t, newTestExecutor(cb).Execute(context.Background(), sess, "write"))

	assert.Len(t, reviewer.Calls(), 2)
	assert.Len(t, writer.Calls(), 1)
	assert.Equal(t, 1, rounds)
	assert.Equal(t, "accepted", reason)
	assert.Contains(t, testutil.Drain(sess), "v1")
}

func TestExecute_BeforeStepVeto(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator)
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).
		Step("research").
		Build()
	defer sess.Close()

	var after string
	exec := newTestExecutor(
		NewFunctionCallback(CallbackBeforeStep, func(context.Context, *CallbackContext) error {
			return errors.New("maintenance")
		}),
		NewFunctionCallback(CallbackAfterStep, func(_ context.Context, c *CallbackContext) error {
			after = c.Outcome
			return nil
		}),
	)

	require.NoError(t, exec.Execute(context.Background(), sess, "research"))
	assert.Empty(t, manager.Calls())
	assert.Equal(t, OutcomeVetoed, after)
	assert.Equal(t, 1, manager.Ends())
}

func TestExecute_CancelledContext(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator)
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).
		Step("research").
		Build()
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, newTestExecutor().Execute(ctx, sess, "research"))
	assert.Empty(t, manager.Calls())
	assert.Equal(t, 1, manager.Ends())
	assert.Equal(t, core.PhaseSessionDone, sess.Phase())
}

func TestExecute_TurnCallbacksSeeEveryTurn(t *testing.T) {
	manager := testutil.NewScriptedAgent(core.DefaultCoordinator,
		addressing("ResearchAssistant", "go"),
		core.TaskDoneMarker,
		"final",
	)
	research := testutil.NewScriptedAgent("ResearchAssistant", "result")
	sess := testutil.NewSessionBuilder("user-1").
		Agent(manager).Agent(research).
		Step("research", "ResearchAssistant").
		Build()
	defer sess.Close()

	var mu sync.Mutex
	var seen []string
	var logged []string
	exec := newTestExecutor(
		NewFunctionCallback(CallbackAfterTurn, func(_ context.Context, c *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, fmt.Sprintf("%d:%s", c.Turn, c.Agent))
			return nil
		}),
		NewLoggingCallback(CallbackAfterStep, func(m string) { logged = append(logged, m) }),
	)

	require.NoError(t, exec.Execute(context.Background(), sess, "research"))
	assert.Equal(t, []string{"1:ChatManager", "1:ResearchAssistant", "2:ChatManager"}, seen)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "outcome=done")
}

func TestCallbackManager_StopsAtFirstError(t *testing.T) {
	cm := NewCallbackManager()
	var order []int
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeTurn, func(context.Context, *CallbackContext) error {
		order = append(order, 1)
		return errors.New("stop")
	}))
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeTurn, func(context.Context, *CallbackContext) error {
		order = append(order, 2)
		return nil
	}))

	err := cm.ExecuteCallbacks(context.Background(), CallbackBeforeTurn, &CallbackContext{})
	require.Error(t, err)
	assert.Equal(t, []int{1}, order)
	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackAfterTurn, &CallbackContext{}))
}
