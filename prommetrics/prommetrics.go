// Package prommetrics exports pool counters to Prometheus.
package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	tp "github.com/Andrej220/go-utils/taskpool"
)

const (
	defaultNamespace = "taskpool"
	subsystem        = "pool"
)

// Metrics is a tp.MetricsPolicy backed by Prometheus collectors.
type Metrics struct {
	queued   prometheus.Gauge
	executed prometheus.Counter
	failed   prometheus.Counter
	retried  prometheus.Counter
	restarts prometheus.Counter
}

var _ tp.MetricsPolicy = (*Metrics)(nil)

// New registers the pool collectors on reg, labelled with the pool name.
// An empty namespace defaults to "taskpool". It panics if the collectors
// are already registered, like promauto does.
func New(reg prometheus.Registerer, namespace, pool string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"pool": pool}

	return &Metrics{
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "queued_tasks",
			Help:        "Number of tasks waiting in the queue",
			ConstLabels: labels,
		}),
		executed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "executed_tasks_total",
			Help:        "Total number of tasks run by a worker, whatever their outcome",
			ConstLabels: labels,
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "failed_tasks_total",
			Help:        "Total number of tasks that failed after exhausting their retries",
			ConstLabels: labels,
		}),
		retried: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "retries_total",
			Help:        "Total number of retries scheduled after a failed attempt",
			ConstLabels: labels,
		}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "worker_restarts_total",
			Help:        "Total number of worker loops respawned after a failure",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) IncQueued()             { m.queued.Inc() }
func (m *Metrics) BatchDecQueued(n int64) { m.queued.Sub(float64(n)) }
func (m *Metrics) IncExecuted()           { m.executed.Inc() }
func (m *Metrics) IncFailed()             { m.failed.Inc() }
func (m *Metrics) IncRetried()            { m.retried.Inc() }
func (m *Metrics) IncWorkerRestarts()     { m.restarts.Inc() }
