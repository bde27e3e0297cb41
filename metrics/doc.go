// Package metrics exposes Prometheus metrics for steps, turns, human waits,
// critic loops, model usage, sessions and HTTP traffic.
//
// The collector hooks into the step executor through engine callbacks:
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(reg)
//	exec := engine.New(func(o *engine.Options) {
//	    o.Callbacks = collector.Callbacks()
//	})
package metrics
