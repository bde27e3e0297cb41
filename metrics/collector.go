package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/agentroom/engine"
	"github.com/hupe1980/agentroom/logging"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "agentroom"

// Options configures NewCollector.
type Options struct {
	Namespace string
	Logger    logging.Logger
}

// Collector records orchestration and transport metrics. All methods are
// safe on a nil *Collector so components can take an optional collector.
type Collector struct {
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	humanWaits     *prometheus.CounterVec
	humanWaitTime  prometheus.Histogram
	criticLoops    *prometheus.CounterVec
	criticRounds   prometheus.Histogram
	tokensTotal    *prometheus.CounterVec
	costTotal      prometheus.Counter
	sessionsActive prometheus.Gauge
	sessionsEvict  *prometheus.CounterVec
	connections    prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec

	logger logging.Logger
}

// NewCollector registers the collector's metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, optFns ...func(o *Options)) *Collector {
	opts := Options{Namespace: DefaultNamespace}
	for _, fn := range optFns {
		fn(&opts)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	ns := opts.Namespace

	c := &Collector{logger: logging.With(opts.Logger, "component", "metrics")}

	c.stepsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "steps_total",
		Help:      "Total number of executed steps by outcome",
	}, []string{"outcome"})

	c.stepDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "step_duration_seconds",
		Help:      "Step duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"outcome"})

	c.turnsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "turns_total",
		Help:      "Total number of agent turns",
	}, []string{"kind", "status"})

	c.turnDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "turn_duration_seconds",
		Help:      "Agent turn duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	c.humanWaits = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "human_waits_total",
		Help:      "Total number of human turns by outcome",
	}, []string{"outcome"})

	c.humanWaitTime = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "human_wait_duration_seconds",
		Help:      "Time spent waiting for human replies",
		Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120},
	})

	c.criticLoops = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "critic_loops_total",
		Help:      "Total number of critic review loops by exit reason",
	}, []string{"exit_reason"})

	c.criticRounds = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "critic_rounds",
		Help:      "Critic review rounds per loop",
		Buckets:   []float64{1, 2, 3, 5, 8},
	})

	c.tokensTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "llm_tokens_total",
		Help:      "Total number of model tokens used",
	}, []string{"type"})

	c.costTotal = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "llm_cost_total",
		Help:      "Total model cost",
	})

	c.sessionsActive = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "sessions_active",
		Help:      "Number of live sessions",
	})

	c.sessionsEvict = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "sessions_evicted_total",
		Help:      "Total number of evicted sessions",
	}, []string{"reason"})

	c.connections = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "ws_connections",
		Help:      "Number of attached websocket channels",
	})

	c.httpRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	c.httpDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	return c
}

// Callbacks returns executor callbacks feeding the collector.
func (c *Collector) Callbacks() []engine.Callback {
	if c == nil {
		return nil
	}
	return []engine.Callback{
		engine.NewFunctionCallback(engine.CallbackAfterStep, c.afterStep),
		engine.NewFunctionCallback(engine.CallbackAfterTurn, c.afterTurn),
		engine.NewFunctionCallback(engine.CallbackAfterHumanWait, c.afterHumanWait),
		engine.NewFunctionCallback(engine.CallbackAfterCritic, c.afterCritic),
	}
}

func (c *Collector) afterStep(_ context.Context, e *engine.CallbackContext) error {
	c.stepsTotal.WithLabelValues(e.Outcome).Inc()
	c.stepDuration.WithLabelValues(e.Outcome).Observe(e.Duration.Seconds())
	c.tokensTotal.WithLabelValues("prompt").Add(float64(e.Usage.PromptTokens))
	c.tokensTotal.WithLabelValues("completion").Add(float64(e.Usage.CompletionTokens))
	if e.Usage.TotalCost > 0 {
		c.costTotal.Add(e.Usage.TotalCost)
	}
	c.logger.Debug("metrics.step", "step", e.Step, "outcome", e.Outcome)
	return nil
}

func (c *Collector) afterTurn(_ context.Context, e *engine.CallbackContext) error {
	status := "ok"
	if e.Err != nil {
		status = "error"
	}
	c.turnsTotal.WithLabelValues(string(e.Kind), status).Inc()
	c.turnDuration.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
	return nil
}

func (c *Collector) afterHumanWait(_ context.Context, e *engine.CallbackContext) error {
	c.humanWaits.WithLabelValues(e.Outcome).Inc()
	c.humanWaitTime.Observe(e.Duration.Seconds())
	return nil
}

func (c *Collector) afterCritic(_ context.Context, e *engine.CallbackContext) error {
	c.criticLoops.WithLabelValues(e.Outcome).Inc()
	c.criticRounds.Observe(float64(e.Rounds))
	return nil
}

// SessionCreated counts a new session.
func (c *Collector) SessionCreated() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

// SessionEvicted counts an evicted session.
func (c *Collector) SessionEvicted(reason string) {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
	c.sessionsEvict.WithLabelValues(reason).Inc()
}

// ConnectionOpened tracks an attached websocket channel.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

// ConnectionClosed tracks a detached websocket channel.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connections.Dec()
}

// RecordHTTPRequest records one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
