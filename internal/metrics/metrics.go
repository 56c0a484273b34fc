// Package metrics provides Prometheus metrics for drive operations.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hivedrive"

// Recorder holds the drive metrics on a private registry. It implements
// drive.Observer; its other methods match the credential, selector and
// poller hooks.
type Recorder struct {
	reg *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	refreshesTotal    *prometheus.CounterVec
	failoversTotal    prometheus.Counter
	jobPollsTotal     *prometheus.CounterVec
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Drive operations by backend, operation and outcome",
			},
			[]string{"backend", "op", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Drive operation latency including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Operations retried after a recoverable failure",
			},
			[]string{"backend", "class"},
		),
		refreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_refreshes_total",
				Help:      "OAuth access token refreshes",
			},
			[]string{"result"},
		),
		failoversTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_failovers_total",
				Help:      "Daemon endpoints marked unreachable",
			},
		),
		jobPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_polls_total",
				Help:      "Asynchronous job status polls by observed state",
			},
			[]string{"state"},
		),
	}
}

// Registry returns the registry holding the metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// OperationDone records one finished drive operation.
func (r *Recorder) OperationDone(backend, op, outcome string, elapsed time.Duration) {
	r.operationsTotal.WithLabelValues(backend, op, outcome).Inc()
	r.operationDuration.WithLabelValues(backend, op).Observe(elapsed.Seconds())
}

// Retried records a retry after a recoverable failure.
func (r *Recorder) Retried(backend, class string) {
	r.retriesTotal.WithLabelValues(backend, class).Inc()
}

// CredentialRefreshed records a token refresh outcome.
func (r *Recorder) CredentialRefreshed(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}

	r.refreshesTotal.WithLabelValues(result).Inc()
}

// EndpointFailover records an endpoint being marked unreachable.
func (r *Recorder) EndpointFailover() {
	r.failoversTotal.Inc()
}

// JobPolled records one job status poll.
func (r *Recorder) JobPolled(state string) {
	r.jobPollsTotal.WithLabelValues(state).Inc()
}

// WriteTextfile writes the metrics in text exposition format to path, for
// the node exporter's textfile collector. The write is atomic.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: creating directory for %s: %w", path, err)
	}

	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metrics: writing %s: %w", path, err)
	}

	return nil
}
