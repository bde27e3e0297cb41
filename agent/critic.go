package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
)

// ExitReason describes why a CriticLoop stopped.
type ExitReason string

const (
	// ExitReasonAccepted means the critic accepted the output.
	ExitReasonAccepted ExitReason = "accepted"
	// ExitReasonMaxRounds means the round cap was reached without acceptance.
	ExitReasonMaxRounds ExitReason = "max_rounds"
	// ExitReasonError means the producer or critic failed.
	ExitReasonError ExitReason = "error"
	// ExitReasonInterrupt means the context was cancelled.
	ExitReasonInterrupt ExitReason = "interrupt"
)

// CriticResult is the outcome of a critic review loop.
type CriticResult struct {
	Output     string     `json:"output"`
	Feedback   string     `json:"feedback"`
	Rounds     int        `json:"rounds"`
	Accepted   bool       `json:"accepted"`
	ExitReason ExitReason `json:"exit_reason"`
}

// CriticLoop alternates between a producer and a critic until the critic
// accepts the producer's output or the round cap is reached.
//
// One round is one critic review. A rejected review is sent back to the
// producer for revision unless it was the last allowed round, so the critic
// is invoked at most maxRounds times and the producer at most maxRounds-1 times.
type CriticLoop struct {
	producer  core.Agent
	critic    core.Agent
	maxRounds int
	accepted  func(feedback string) bool
	marker    string
	step      StepFunc
	logger    logging.Logger
}

// StepFunc runs one agent turn. The default calls a.Step directly.
type StepFunc func(ctx context.Context, a core.Agent, msg core.Message) (string, error)

func directStep(ctx context.Context, a core.Agent, msg core.Message) (string, error) {
	return a.Step(ctx, msg)
}

// CriticOption defines a configuration function for customizing CriticLoop behavior.
type CriticOption func(*CriticLoop)

// WithMaxRounds sets the critic round cap. Values below one are ignored.
func WithMaxRounds(n int) CriticOption {
	return func(l *CriticLoop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithAcceptance sets the predicate deciding whether feedback accepts the output.
//
// Example:
//
//	WithAcceptance(func(feedback string) bool {
//	    return strings.HasPrefix(feedback, "LGTM")
//	})
func WithAcceptance(pred func(feedback string) bool) CriticOption {
	return func(l *CriticLoop) {
		if pred != nil {
			l.accepted = pred
		}
	}
}

// WithAcceptanceMarker accepts feedback containing marker and tells the
// critic to reply with it.
func WithAcceptanceMarker(marker string) CriticOption {
	return func(l *CriticLoop) {
		if strings.TrimSpace(marker) == "" {
			return
		}
		l.marker = strings.TrimSpace(marker)
		l.accepted = IsAccepted(l.marker)
	}
}

// WithStepFunc routes every critic review and producer revision through fn,
// for example to retry failed turns. A nil fn is ignored.
func WithStepFunc(fn StepFunc) CriticOption {
	return func(l *CriticLoop) {
		if fn != nil {
			l.step = fn
		}
	}
}

// WithCriticLogger sets the logger.
func WithCriticLogger(logger logging.Logger) CriticOption {
	return func(l *CriticLoop) { l.logger = logger }
}

// IsAccepted returns a predicate matching feedback that contains marker.
// An empty marker falls back to core.DefaultAcceptanceMarker.
func IsAccepted(marker string) func(string) bool {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = core.DefaultAcceptanceMarker
	}
	return func(feedback string) bool { return strings.Contains(feedback, marker) }
}

// NewCriticLoop constructs a review loop.
// Defaults: core.DefaultCriticIterations rounds, IsAccepted(core.DefaultAcceptanceMarker).
func NewCriticLoop(producer, critic core.Agent, opts ...CriticOption) *CriticLoop {
	l := &CriticLoop{
		producer:  producer,
		critic:    critic,
		maxRounds: core.DefaultCriticIterations,
		accepted:  IsAccepted(core.DefaultAcceptanceMarker),
		marker:    core.DefaultAcceptanceMarker,
		step:      directStep,
	}
	for _, o := range opts {
		o(l)
	}
	l.logger = logging.With(l.logger, "producer", producer.Name(), "critic", critic.Name())
	return l
}

// MaxRounds returns the round cap.
func (l *CriticLoop) MaxRounds() int { return l.maxRounds }

// Run reviews output, the producer's initial answer. On error the result
// carries the last good output.
func (l *CriticLoop) Run(ctx context.Context, output string) (CriticResult, error) {
	res := CriticResult{Output: output}

	for round := 1; round <= l.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			res.ExitReason = ExitReasonInterrupt
			return res, err
		}

		feedback, err := l.step(ctx, l.critic, core.UserMessage(reviewPrompt(l.producer.Name(), l.marker, res.Output)))
		if err != nil {
			return l.fail(res, fmt.Errorf("critic %s round %d: %w", l.critic.Name(), round, err))
		}
		res.Rounds = round
		res.Feedback = feedback

		if l.accepted(feedback) {
			res.Accepted = true
			res.ExitReason = ExitReasonAccepted
			l.logger.Info("critic.accepted", "rounds", round)
			return res, nil
		}
		l.logger.Debug("critic.rejected", "round", round)

		if round == l.maxRounds {
			break
		}
		revised, err := l.step(ctx, l.producer, core.UserMessage(revisePrompt(l.critic.Name(), feedback)))
		if err != nil {
			return l.fail(res, fmt.Errorf("producer %s round %d: %w", l.producer.Name(), round, err))
		}
		res.Output = revised
	}

	res.ExitReason = ExitReasonMaxRounds
	l.logger.Info("critic.max_rounds", "rounds", res.Rounds)
	return res, nil
}

func (l *CriticLoop) fail(res CriticResult, err error) (CriticResult, error) {
	res.ExitReason = ExitReasonError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.ExitReason = ExitReasonInterrupt
	}
	l.logger.Warn("critic.failed", "error", err)
	return res, err
}

func reviewPrompt(producer, marker, output string) string {
	return fmt.Sprintf("Review the following output from %s. Reply with %s if it is acceptable, otherwise give concrete feedback.\n\n%s",
		producer, marker, output)
}

func revisePrompt(critic, feedback string) string {
	return fmt.Sprintf("Revise your previous output based on this feedback from %s:\n\n%s", critic, feedback)
}
