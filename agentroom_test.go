package agentroom_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroom"
	"github.com/hupe1980/agentroom/agent"
	"github.com/hupe1980/agentroom/config"
	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/engine"
	"github.com/hupe1980/agentroom/internal/testutil"
	"github.com/hupe1980/agentroom/memory"
	"github.com/hupe1980/agentroom/model"
)

const haikuScenario = `
agents:
  ChatManager:
    type: llm
    role_name: ChatManager
    system_prompt: You coordinate {{.role_name}}'s team.
    llm: mock
  Writer:
    type: llm
    role_name: Writer
    llm: mock
variables:
  inputs:
    topic: autumn
  steps:
    draft:
      participants: [Writer]
      description: Write a haiku.
`

func newRoom(t *testing.T, llm *model.MockModel, reg prometheus.Registerer) *agentroom.AgentRoom {
	t.Helper()
	path := filepath.Join(t.TempDir(), "haiku.yaml")
	require.NoError(t, os.WriteFile(path, []byte(haikuScenario), 0o600))

	models := model.NewRegistry()
	models.Register("mock", llm)

	resolver := config.NewResolver(
		config.NewCatalog(map[string]string{"haiku": path}, []string{}),
		agent.Deps{Models: models, Store: memory.NewInMemoryStore()},
	)
	room := agentroom.New(resolver, func(o *agentroom.Options) {
		o.EngineConfig = engine.Config{}
		o.Registerer = reg
	})
	t.Cleanup(room.Close)
	return room
}

func TestAgentRoom_EndToEnd(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(
		`{"Thought": "ask the writer", "Action": "Writer", "Action Input": "Write a haiku about autumn", "Question": ""}`,
		"An old silent pond",
		core.TaskDoneMarker,
		"Final: An old silent pond",
	)
	reg := prometheus.NewRegistry()
	room := newRoom(t, llm, reg)
	ctx := context.Background()

	ack := room.Handle(ctx, "u1", "start", true)
	require.True(t, ack.OK)
	ack = room.Handle(ctx, "u1", "1", true)
	require.True(t, ack.OK, ack.Message)
	assert.Equal(t, "Process for 'haiku' and step 'draft' started.", ack.Message)

	sess, ok := room.Sessions().Get("u1")
	require.True(t, ok)

	var out []string
	require.Eventually(t, func() bool {
		out = append(out, testutil.Drain(sess)...)
		return sess.Phase() == core.PhaseSessionDone && !sess.Started()
	}, 2*time.Second, 5*time.Millisecond)
	out = append(out, testutil.Drain(sess)...)

	assert.Contains(t, out, "An old silent pond")
	assert.Contains(t, out, "Final: An old silent pond")
	assert.NotEmpty(t, sess.Snapshots())

	// the step metric is recorded after the session is marked done
	require.Eventually(t, func() bool {
		return contains(gatherNames(t, reg), "agentroom_steps_total")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, gatherNames(t, reg), "agentroom_sessions_active")
}

func gatherNames(t *testing.T, reg *prometheus.Registry) []string {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestAgentRoom_WithoutMetrics(t *testing.T) {
	room := newRoom(t, model.NewMockModel("mock", "mock"), nil)
	assert.Nil(t, room.Metrics())
	assert.NotNil(t, room.Gateway())

	ack := room.Handle(context.Background(), "u1", "hello", true)
	assert.False(t, ack.OK)
	assert.Equal(t, 1, room.Sessions().Len())
}

func TestAgentRoom_Callbacks(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(core.TaskDoneMarker, "done")

	var steps []string
	path := filepath.Join(t.TempDir(), "haiku.yaml")
	require.NoError(t, os.WriteFile(path, []byte(haikuScenario), 0o600))
	models := model.NewRegistry()
	models.Register("mock", llm)

	done := make(chan struct{})
	room := agentroom.New(
		config.NewResolver(config.NewCatalog(map[string]string{"haiku": path}, []string{}), agent.Deps{Models: models, Store: memory.NewInMemoryStore()}),
		func(o *agentroom.Options) {
			o.EngineConfig = engine.Config{}
			o.Callbacks = []engine.Callback{engine.NewFunctionCallback(engine.CallbackAfterStep, func(_ context.Context, e *engine.CallbackContext) error {
				steps = append(steps, fmt.Sprintf("%s:%s", e.Step, e.Outcome))
				close(done)
				return nil
			})}
		},
	)
	defer room.Close()

	ctx := context.Background()
	room.Handle(ctx, "u1", "start", false)
	room.Handle(ctx, "u1", "1", false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("step did not finish")
	}
	assert.Equal(t, []string{"draft:" + engine.OutcomeDone}, steps)
}
