// Package metrics exports task-run metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AndreyAkinshin/sitepipe/internal/taskgraph"
)

// Namespace prefixes every metric name.
const Namespace = "sitepipe"

// Collector records task and run metrics. It implements taskgraph.Observer.
type Collector struct {
	registry *prom.Registry

	taskDuration *prom.HistogramVec
	taskFailures *prom.CounterVec
	taskSkipped  *prom.CounterVec
	running      prom.Gauge
	runs         *prom.CounterVec
	runDuration  *prom.HistogramVec
}

var _ taskgraph.Observer = (*Collector)(nil)

// NewCollector creates a collector with its own registry.
func NewCollector() (*Collector, error) {
	reg := prom.NewRegistry()

	c := &Collector{
		registry: reg,
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: Namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prom.DefBuckets,
		}, []string{"task", "outcome"}),
		taskFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "task_failures_total",
			Help:      "Total number of failed task executions.",
		}, []string{"task"}),
		taskSkipped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "task_skipped_total",
			Help:      "Total number of tasks skipped after an upstream failure.",
		}, []string{"task"}),
		running: prom.NewGauge(prom.GaugeOpts{
			Namespace: Namespace,
			Name:      "tasks_running",
			Help:      "Tasks currently running.",
		}),
		runs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs.",
		}, []string{"kind", "outcome"}),
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds.",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
	}

	for _, col := range []prom.Collector{c.taskDuration, c.taskFailures, c.taskSkipped, c.running, c.runs, c.runDuration} {
		if err := reg.Register(col); err != nil {
			var are prom.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// TaskStarted records a task start.
func (c *Collector) TaskStarted(string) {
	if c == nil {
		return
	}
	c.running.Inc()
}

// TaskFinished records a task's duration and outcome.
func (c *Collector) TaskFinished(name string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.running.Dec()
	c.taskDuration.WithLabelValues(label(name), outcome(err)).Observe(d.Seconds())
	if err != nil {
		c.taskFailures.WithLabelValues(label(name)).Inc()
	}
}

// TaskSkipped records a task that never ran.
func (c *Collector) TaskSkipped(name, _ string) {
	if c == nil {
		return
	}
	c.taskSkipped.WithLabelValues(label(name)).Inc()
}

// RunFinished records a whole pipeline run such as "build" or a watch trigger.
func (c *Collector) RunFinished(kind string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(label(kind), outcome(err)).Inc()
	c.runDuration.WithLabelValues(label(kind)).Observe(d.Seconds())
}

// Handler serves the collected metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
