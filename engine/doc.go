// Package engine implements the step executor: the state machine that walks a
// session through one configured step of its scenario.
//
// # State machine
//
//	Idle → StepActive → {AgentTurn, CriticLoop, AwaitingHuman} → StepComplete → SessionDone
//
// Each turn starts with the coordinator. It receives the scenario inputs
// (including the step definition as "goal") together with the previous
// response, and answers with a JSON instruction naming the next participant
// in its "Action" field. The executor then:
//
//   - runs an LLM participant with the aggregated instruction, followed by a
//     critic review loop when the step maps the participant to a critic
//   - satisfies a human participant from the session task queue, or announces
//     the task and waits on the session's human rendezvous
//   - turns an unknown participant into an observation for the next turn
//
// The step ends when the coordinator emits core.TaskDoneMarker, in which case
// it is asked for its final answer, or when the interaction ceiling is
// reached, which is reported to the client as a stop notice.
//
// # Failure handling
//
// A failing turn is retried once after Config.RetryBackoff. A second failure
// becomes the observation "Turn failed for <agent>: <err>". A human wait that
// times out yields an empty reply. Neither aborts the step; only an
// unresolvable step (ErrStepNotFound) or coordinator (ErrAgentNotFound) is
// returned from Execute.
//
// # Callbacks
//
// Callbacks observe the lifecycle (CallbackBeforeStep, CallbackAfterTurn,
// CallbackAfterHumanWait, ...). Before callbacks may veto the operation they
// precede. The metrics package registers its collector this way.
//
// # Usage
//
//	exec := engine.New(func(o *engine.Options) {
//	    o.Logger = logger
//	})
//
//	sess.Go(func(ctx context.Context) {
//	    if err := exec.Execute(ctx, sess, "research"); err != nil {
//	        logger.Error("step failed", "error", err)
//	    }
//	})
package engine
