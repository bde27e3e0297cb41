package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentroom/core"
)

// CallbackType identifies a point in the executor lifecycle where callbacks run.
type CallbackType string

const (
	// CallbackBeforeStep runs once the step is resolved and its agents are
	// cloned. An error vetoes the step: no turn is executed.
	CallbackBeforeStep CallbackType = "before_step"
	// CallbackAfterStep runs after all agents were ended. Outcome carries the
	// exit reason.
	CallbackAfterStep CallbackType = "after_step"
	// CallbackBeforeTurn runs before a participant acts. An error turns the
	// participant's turn into a failed-turn observation.
	CallbackBeforeTurn CallbackType = "before_turn"
	// CallbackAfterTurn runs after a participant (or the coordinator) acted.
	CallbackAfterTurn CallbackType = "after_turn"
	// CallbackAfterHumanWait runs after a human turn resolved. Outcome is one
	// of the HumanOutcome values.
	CallbackAfterHumanWait CallbackType = "after_human_wait"
	// CallbackAfterCritic runs after a critic loop. Outcome is the loop's exit reason.
	CallbackAfterCritic CallbackType = "after_critic"
)

// Step exit reasons reported through CallbackAfterStep.
const (
	OutcomeDone      = "done"
	OutcomeCeiling   = "ceiling"
	OutcomeCancelled = "cancelled"
	OutcomeVetoed    = "vetoed"
)

// Human turn outcomes reported through CallbackAfterHumanWait.
const (
	HumanOutcomeQueued   = "queued"
	HumanOutcomeReplied  = "replied"
	HumanOutcomeTimeout  = "timeout"
	HumanOutcomeFinished = "finished"
)

// CallbackContext describes the event a callback is invoked for. Fields not
// relevant to the callback type are zero.
type CallbackContext struct {
	UserID   string
	Step     string
	Agent    string
	Kind     core.Kind
	Turn     int
	Output   string
	Err      error
	Duration time.Duration
	Outcome  string
	Rounds   int
	// Usage is the model usage of all active agents, set for CallbackAfterStep.
	Usage core.Usage
}

// Callback is invoked by the executor at its lifecycle points.
type Callback interface {
	// Type returns the lifecycle point this callback handles.
	Type() CallbackType
	// Execute performs the callback logic. Errors returned from before
	// callbacks veto the associated operation; errors from after callbacks
	// are logged.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	trace := NewFunctionCallback(CallbackAfterTurn,
//	    func(ctx context.Context, c *CallbackContext) error {
//	        log.Printf("%s acted in turn %d", c.Agent, c.Turn)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager keeps callbacks per type and runs them in registration order.
// It is safe for concurrent use; one executor serves many sessions.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType. The first
// error stops execution and is returned.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterTurn, func(message string) {
//	    log.Printf("[ENGINE] %s", message)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event. A nil logger function is a no-op.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger != nil {
		c.logger(fmt.Sprintf("[%s] step=%s agent=%s turn=%d outcome=%s",
			c.callbackType, callbackCtx.Step, callbackCtx.Agent, callbackCtx.Turn, callbackCtx.Outcome))
	}
	return nil
}
