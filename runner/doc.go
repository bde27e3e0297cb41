// Package runner routes client submissions to their session.
//
// The dialogue follows the command flow of the chat frontend:
//
//	start            → numbered list of configurations
//	<n>              → configuration chosen; a single step starts at once,
//	                   several steps are offered as a numbered list
//	<n>              → step chosen and started
//	stop             → cancels the running step
//
// While a human participant's reply is awaited, the next submission is
// delivered to the executor exactly once. Other text submitted during a
// running step is queued for the next human turn; outside of a step it is
// echoed back.
//
// Steps run on a core.StepExecutor in a goroutine bound to the session
// context, so evicting a session also stops its step.
package runner
