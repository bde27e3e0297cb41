// Package logging provides the minimal logging interface used by agentroom
// and the adapters that back it.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) taking alternating key/value pairs. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping go.uber.org/zap for production deployments
//   - With for binding component/session attributes
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger, err := logging.NewZap(logging.LogLevelInfo, "json")
//	room, err := agentroom.New(func(o *agentroom.Options) { o.Logger = logger })
package logging
