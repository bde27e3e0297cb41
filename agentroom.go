// Package agentroom provides a high-level façade over the session store, the
// step executor and the command runner, enabling a multi-agent conversation
// server to be assembled in a few lines. Most applications:
//  1. Build a runner.Resolver (usually config.NewResolver over a catalog)
//  2. Create an AgentRoom via New(resolver), optionally with metrics
//  3. Serve it through Gateway() and keep Run() going for idle eviction
//
// Without overrides the façade keeps sessions in memory for 30 idle minutes
// and logs nothing.
package agentroom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/engine"
	"github.com/hupe1980/agentroom/gateway"
	"github.com/hupe1980/agentroom/logging"
	"github.com/hupe1980/agentroom/metrics"
	"github.com/hupe1980/agentroom/runner"
	"github.com/hupe1980/agentroom/session"
)

// Options configures the AgentRoom instance.
type Options struct {
	// Engine configuration (turn retry backoff, concurrent step limit)
	EngineConfig engine.Config

	// Callbacks observe step lifecycle events in addition to metrics.
	Callbacks []engine.Callback

	// SessionTTL is the idle time before a detached session is evicted.
	SessionTTL time.Duration
	// OutboxSize bounds each session's outbound queue.
	OutboxSize int
	// Context is the parent of every session context.
	Context context.Context

	// Registerer receives the Prometheus metrics. Nil disables metrics.
	Registerer       prometheus.Registerer
	MetricsNamespace string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentRoom is the high-level façade aggregating sessions, executor and runner.
type AgentRoom struct {
	opts     Options
	sessions *session.Store
	executor *engine.Executor
	runner   *runner.Runner
	metrics  *metrics.Collector
}

// New creates an AgentRoom resolving configurations through resolver.
func New(resolver runner.Resolver, optFns ...func(o *Options)) *AgentRoom {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		SessionTTL:   session.DefaultTTL,
		OutboxSize:   core.DefaultOutboxSize,
		Context:      context.Background(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	var collector *metrics.Collector
	if opts.Registerer != nil {
		collector = metrics.NewCollector(opts.Registerer, func(o *metrics.Options) {
			if opts.MetricsNamespace != "" {
				o.Namespace = opts.MetricsNamespace
			}
			o.Logger = opts.Logger
		})
	}

	sessions := session.NewStore(func(o *session.Options) {
		o.TTL = opts.SessionTTL
		o.OutboxSize = opts.OutboxSize
		o.Context = opts.Context
		o.Logger = opts.Logger
		if collector != nil {
			o.Observer = collector
		}
	})

	callbacks := append(collector.Callbacks(), opts.Callbacks...)
	executor := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Callbacks = callbacks
		o.Logger = opts.Logger
	})

	r := runner.New(sessions, resolver, executor, func(o *runner.Options) {
		o.Logger = opts.Logger
	})

	return &AgentRoom{
		opts:     opts,
		sessions: sessions,
		executor: executor,
		runner:   r,
		metrics:  collector,
	}
}

// Handle routes client text to the user's session.
func (a *AgentRoom) Handle(ctx context.Context, userID, text string, sync bool) core.Ack {
	return a.runner.Handle(ctx, userID, text, sync)
}

// Gateway builds the HTTP surface over this room.
func (a *AgentRoom) Gateway(optFns ...func(o *gateway.Options)) *gateway.Server {
	base := func(o *gateway.Options) {
		o.Metrics = a.metrics
		o.Logger = a.opts.Logger
	}
	return gateway.New(a.runner, a.sessions, append([]func(o *gateway.Options){base}, optFns...)...)
}

// Run evicts idle sessions every interval until ctx is done.
func (a *AgentRoom) Run(ctx context.Context, interval time.Duration) error {
	return a.sessions.Run(ctx, interval)
}

// Close stops every session and waits for running steps.
func (a *AgentRoom) Close() {
	a.sessions.Close()
}

// Sessions exposes the session store.
func (a *AgentRoom) Sessions() *session.Store { return a.sessions }

// Runner exposes the command runner.
func (a *AgentRoom) Runner() *runner.Runner { return a.runner }

// Executor exposes the step executor, e.g. to register callbacks.
func (a *AgentRoom) Executor() *engine.Executor { return a.executor }

// Metrics returns the collector, nil when metrics are disabled.
func (a *AgentRoom) Metrics() *metrics.Collector { return a.metrics }
