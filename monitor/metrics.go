// Package monitor exposes Prometheus metrics for relay traffic. Metrics are
// registered on the default registry and served by promhttp at /metrics.
package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claude_relay_requests_total",
		Help: "Total relay requests by provider, model and response status.",
	}, []string{"provider", "model", "status"})

	relayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claude_relay_request_duration_seconds",
		Help:    "End-to-end relay request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"provider", "model"})

	relayTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claude_relay_tokens_total",
		Help: "Token throughput by provider, model and direction.",
	}, []string{"provider", "model", "direction"})

	accountPoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "claude_relay_enabled_accounts",
		Help: "Enabled accounts currently visible to the pool.",
	}, []string{"provider"})
)

// ObserveRelayRequest records one finished relay request.
func ObserveRelayRequest(provider, model string, status int, elapsed time.Duration) {
	relayRequestsTotal.WithLabelValues(provider, model, strconv.Itoa(status)).Inc()
	relayLatency.WithLabelValues(provider, model).Observe(elapsed.Seconds())
}

// ObserveTokens records token usage for one finished relay request.
func ObserveTokens(provider, model string, inputTokens, outputTokens int) {
	relayTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	relayTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
}

// SetEnabledAccounts reports the pool's view of available credentials.
func SetEnabledAccounts(provider string, count int) {
	accountPoolSize.WithLabelValues(provider).Set(float64(count))
}
