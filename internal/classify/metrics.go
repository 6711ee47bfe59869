package classify

import (
	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func newGatewayMetrics() *gatewayMetrics {
	return &gatewayMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shockeval",
			Subsystem: "classifier",
			Name:      "calls_total",
			Help:      "Classifier calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shockeval",
			Subsystem: "classifier",
			Name:      "call_duration_seconds",
			Help:      "Classifier call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shockeval",
			Subsystem: "classifier",
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"provider"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shockeval",
			Subsystem: "classifier",
			Name:      "in_flight",
			Help:      "Calls holding a concurrency slot.",
		}),
	}
}

func (m *gatewayMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.calls, m.latency, m.tokens, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
