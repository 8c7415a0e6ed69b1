// Package metrics exposes the Prometheus instrumentation mentioned in §9's
// domain stack: request latency, token usage, and per-plugin phase timing,
// all labeled by provider/model/adapter so a dashboard can slice by any of
// them. The corpus pulls in prometheus/client_golang only as a transitive
// dependency with no usage site of its own, so this package follows the
// library's own documented promauto pattern rather than a specific example.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the gateway emits behind one struct so
// call sites don't reach for package-level globals.
type Registry struct {
	RequestDuration     *prometheus.HistogramVec
	RequestsTotal       *prometheus.CounterVec
	TokensTotal         *prometheus.CounterVec
	PluginPhaseDuration *prometheus.HistogramVec
	ActiveStreams       prometheus.Gauge
}

// New registers every metric against reg and returns the bundle. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry across parallel test binaries.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmrouter",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency by adapter, provider, and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter", "provider", "model", "status"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmrouter",
			Name:      "requests_total",
			Help:      "Total requests handled, by adapter, provider, model, and outcome.",
		}, []string{"adapter", "provider", "model", "status"}),
		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmrouter",
			Name:      "tokens_total",
			Help:      "Total tokens consumed, by model and token kind (prompt/completion).",
		}, []string{"model", "kind"}),
		PluginPhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmrouter",
			Name:      "plugin_phase_duration_seconds",
			Help:      "Time spent in a single plugin hook invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"plugin", "phase"}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "llmrouter",
			Name:      "active_streams",
			Help:      "Number of streaming requests currently open.",
		}),
	}
}

// ObserveRequest records one completed request's latency and outcome.
func (r *Registry) ObserveRequest(adapterName, providerName, modelName, status string, d time.Duration) {
	labels := prometheus.Labels{"adapter": adapterName, "provider": providerName, "model": modelName, "status": status}
	r.RequestDuration.With(labels).Observe(d.Seconds())
	r.RequestsTotal.With(labels).Inc()
}

// ObserveTokens records prompt/completion token counts for a completed request.
func (r *Registry) ObserveTokens(modelName string, prompt, completion int) {
	if prompt > 0 {
		r.TokensTotal.With(prometheus.Labels{"model": modelName, "kind": "prompt"}).Add(float64(prompt))
	}
	if completion > 0 {
		r.TokensTotal.With(prometheus.Labels{"model": modelName, "kind": "completion"}).Add(float64(completion))
	}
}

// ObservePluginPhase records how long one plugin's hook call took.
func (r *Registry) ObservePluginPhase(pluginName, phase string, d time.Duration) {
	r.PluginPhaseDuration.With(prometheus.Labels{"plugin": pluginName, "phase": phase}).Observe(d.Seconds())
}
