// Package metrics exposes Prometheus collectors for the provisioning flow and
// a small HTTP server serving them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provisioning outcomes.
const (
	OutcomeProvisioned = "provisioned"
	OutcomeFailed      = "failed"
)

var (
	// ProvisioningAttempts counts provisioning attempts by outcome.
	ProvisioningAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_attempts_total",
		Help: "Provisioning attempts by outcome.",
	}, []string{"outcome"})

	// ProvisioningDuration observes the duration of provisioning attempts,
	// including the round trip to the intake endpoint.
	ProvisioningDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "provisioning_duration_seconds",
		Help:    "Duration of provisioning attempts.",
		Buckets: prometheus.DefBuckets,
	})

	// IntakeRequests counts intake requests by result.
	IntakeRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_requests_total",
		Help: "Bucket instance intake requests by result.",
	}, []string{"result"})

	// BucketOperations counts registry operations by operation and result.
	BucketOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucket_operations_total",
		Help: "Bucket registry operations by operation and result.",
	}, []string{"operation", "result"})
)

// MetricsServer serves the process metrics on a dedicated listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server on addr. All collectors are registered on a
// fresh registry under the given namespace.
func New(namespace string, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	reg := prometheus.WrapRegistererWithPrefix(namespace+"_", registry)

	for _, c := range []prometheus.Collector{
		ProvisioningAttempts,
		ProvisioningDuration,
		IntakeRequests,
		BucketOperations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the HTTP handler serving /metrics.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
