// Package metrics exposes promauto-registered counters and histograms for
// fan-out and Remote Agent Client activity, following the
// promauto.NewCounter pattern from Chapter13/prom_http. No HTTP /metrics
// endpoint is wired here: serving the default registry is left to the
// embedding process, since the REST transport layer is out of scope for
// this repo.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FanoutCalls counts fan-out invocations per action and outcome
	// ("ok"/"error"), one increment per Executor.Run call; the outcome is
	// "error" when any host failed.
	FanoutCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dfms_fanout_calls_total",
		Help: "Total number of fan-out calls, by action and outcome",
	}, []string{"action", "outcome"})

	// FanoutDuration observes the wall-clock duration of a single
	// Executor.Run call (all hosts), by action.
	FanoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "dfms_fanout_duration_seconds",
		Help: "Duration of a fan-out call across all hosts, by action",
	}, []string{"action"})

	// RemoteCalls counts Remote Agent Client RPCs, by method and outcome.
	RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dfms_remote_calls_total",
		Help: "Total number of Remote Agent Client RPCs, by method and outcome",
	}, []string{"method", "outcome"})
)

// ObserveFanout records the outcome and duration of a completed fan-out
// call.
func ObserveFanout(action string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FanoutCalls.WithLabelValues(action, outcome).Inc()
	FanoutDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveRemoteCall records the outcome of a single Remote Agent Client
// RPC.
func ObserveRemoteCall(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RemoteCalls.WithLabelValues(method, outcome).Inc()
}
