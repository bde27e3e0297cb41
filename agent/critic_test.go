package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/internal/testutil"
)

func TestCriticLoop_StopsAtRoundCap(t *testing.T) {
	producer := testutil.NewScriptedAgent("Writer").RespondWith(func(core.Message) (string, error) { return "revised", nil })
	critic := testutil.NewScriptedAgent("Reviewer")
	critic.Fallback = "needs work"

	res, err := NewCriticLoop(producer, critic, WithMaxRounds(3)).Run(context.Background(), "draft")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ExitReasonMaxRounds, res.ExitReason)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, "needs work", res.Feedback)
	assert.Equal(t, "revised", res.Output)
	assert.Len(t, critic.Calls(), 3)
	assert.Len(t, producer.Calls(), 2)
	assert.Contains(t, critic.Calls()[0].Content, "draft")
}

func TestCriticLoop_AcceptsEarly(t *testing.T) {
	producer := testutil.NewScriptedAgent("Writer", "v2")
	critic := testutil.NewScriptedAgent("Reviewer", "too short", "looks good <ACCEPTED>")

	res, err := NewCriticLoop(producer, critic).Run(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ExitReasonAccepted, res.ExitReason)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, "v2", res.Output)
	assert.Contains(t, producer.Calls()[0].Content, "too short")
}

func TestCriticLoop_CustomAcceptance(t *testing.T) {
	producer := testutil.NewScriptedAgent("Writer")
	critic := testutil.NewScriptedAgent("Reviewer", "LGTM")

	res, err := NewCriticLoop(producer, critic, WithAcceptanceMarker("LGTM")).Run(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Contains(t, critic.Calls()[0].Content, "Reply with LGTM")

	critic2 := testutil.NewScriptedAgent("Reviewer", "ship it")
	res, err = NewCriticLoop(producer, critic2, WithAcceptance(func(f string) bool {
		return strings.HasPrefix(f, "ship")
	})).Run(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestCriticLoop_Errors(t *testing.T) {
	boom := errors.New("boom")

	producer := testutil.NewScriptedAgent("Writer")
	critic := testutil.NewScriptedAgent("Reviewer").ThenFail(boom)
	res, err := NewCriticLoop(producer, critic).Run(context.Background(), "v1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ExitReasonError, res.ExitReason)
	assert.Equal(t, "v1", res.Output)

	producer = testutil.NewScriptedAgent("Writer").ThenFail(boom)
	critic = testutil.NewScriptedAgent("Reviewer", "no")
	res, err = NewCriticLoop(producer, critic).Run(context.Background(), "v1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.Rounds)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = NewCriticLoop(producer, critic).Run(ctx, "v1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitReasonInterrupt, res.ExitReason)
}

func TestCriticLoop_WithStepFunc(t *testing.T) {
	producer := testutil.NewScriptedAgent("Writer", "v2")
	critic := testutil.NewScriptedAgent("Reviewer").ThenFail(errors.New("flaky")).Then("no", "<ACCEPTED>")

	var steps []string
	retry := func(ctx context.Context, a core.Agent, msg core.Message) (string, error) {
		steps = append(steps, a.Name())
		out, err := a.Step(ctx, msg)
		if err != nil {
			return a.Step(ctx, msg)
		}
		return out, nil
	}

	res, err := NewCriticLoop(producer, critic, WithStepFunc(retry)).Run(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "v2", res.Output)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, []string{"Reviewer", "Writer", "Reviewer"}, steps)
	assert.Len(t, critic.Calls(), 3)
}

func TestIsAccepted(t *testing.T) {
	assert.True(t, IsAccepted("")("fine <ACCEPTED>"))
	assert.False(t, IsAccepted("")("accepted"))
	assert.True(t, IsAccepted(" OK ")("OK then"))
}

// The critic never runs more than the cap and the producer never more than cap-1 times.
func TestCriticLoop_RoundCapProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxRounds := rapid.IntRange(1, 6).Draw(rt, "maxRounds")
		acceptAt := rapid.IntRange(0, 8).Draw(rt, "acceptAt") // 0 = never

		round := 0
		critic := testutil.NewScriptedAgent("Reviewer").RespondWith(func(core.Message) (string, error) {
			round++
			if round == acceptAt {
				return core.DefaultAcceptanceMarker, nil
			}
			return "again", nil
		})
		producer := testutil.NewScriptedAgent("Writer")

		res, err := NewCriticLoop(producer, critic, WithMaxRounds(maxRounds)).Run(context.Background(), "v0")
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if n := len(critic.Calls()); n > maxRounds || n != res.Rounds {
			rt.Fatalf("critic calls %d, rounds %d, cap %d", n, res.Rounds, maxRounds)
		}
		if n := len(producer.Calls()); n > maxRounds-1 {
			rt.Fatalf("producer calls %d exceed cap-1 (%d)", n, maxRounds-1)
		}
		wantAccepted := acceptAt >= 1 && acceptAt <= maxRounds
		if res.Accepted != wantAccepted {
			rt.Fatalf("accepted=%v want %v", res.Accepted, wantAccepted)
		}
	})
}
