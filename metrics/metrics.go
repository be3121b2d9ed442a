package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BundlerMetrics is what the bundler client reports about its RPC traffic.
type BundlerMetrics interface {
	IncBundlerRequest(method, status string)
}

const apNamespace = "ap"

// Request outcomes used as the status label.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// BundlerRpcMetrics counts JSON-RPC requests sent to bundlers.
type BundlerRpcMetrics struct {
	numRequests *prometheus.CounterVec
}

func NewBundlerRpcMetrics(reg prometheus.Registerer) *BundlerRpcMetrics {
	return &BundlerRpcMetrics{
		numRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "bundler_rpc_requests_total",
				Help:      "The number of JSON-RPC requests sent to the bundler, by method and outcome",
			}, []string{"method", "status"}),
	}
}

func (m *BundlerRpcMetrics) IncBundlerRequest(method, status string) {
	m.numRequests.WithLabelValues(method, status).Inc()
}

// NoopMetrics drops everything.
type NoopMetrics struct{}

func (NoopMetrics) IncBundlerRequest(method, status string) {}
