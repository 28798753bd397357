package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func histogramCount(t *testing.T, c *Collector, name string, labels map[string]string) uint64 {
	t.Helper()
	families, err := c.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestCollector_TaskLifecycle(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.TaskStarted("prodStyle")
	c.TaskStarted("prodScript")
	if got := testutil.ToFloat64(c.running); got != 2 {
		t.Errorf("tasks_running = %v, want 2", got)
	}
	c.TaskFinished("prodStyle", 120*time.Millisecond, nil)
	c.TaskFinished("prodScript", 80*time.Millisecond, errors.New("syntax error"))
	c.TaskSkipped("cleanJunk", "upstream failed")

	if got := testutil.ToFloat64(c.running); got != 0 {
		t.Errorf("tasks_running = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.taskFailures.WithLabelValues("prodScript")); got != 1 {
		t.Errorf("failures(prodScript) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.taskSkipped.WithLabelValues("cleanJunk")); got != 1 {
		t.Errorf("skipped(cleanJunk) = %v, want 1", got)
	}
	if got := histogramCount(t, c, "sitepipe_task_duration_seconds", map[string]string{"task": "prodStyle", "outcome": "success"}); got != 1 {
		t.Errorf("duration samples(prodStyle) = %d, want 1", got)
	}
}

func TestCollector_RunFinished(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatal(err)
	}
	c.RunFinished("build", time.Second, nil)
	c.RunFinished("build", time.Second, errors.New("x"))
	c.RunFinished("", time.Second, nil)

	if got := testutil.ToFloat64(c.runs.WithLabelValues("build", "success")); got != 1 {
		t.Errorf("runs(build, success) = %v", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("build", "failure")); got != 1 {
		t.Errorf("runs(build, failure) = %v", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("unknown", "success")); got != 1 {
		t.Errorf("runs(unknown, success) = %v", got)
	}
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.TaskStarted("x")
	c.TaskFinished("x", time.Second, nil)
	c.TaskSkipped("x", "")
	c.RunFinished("build", time.Second, nil)
}

func TestCollector_Handler(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatal(err)
	}
	c.TaskFinished("html", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sitepipe_task_duration_seconds_count{outcome="success",task="html"} 1`) {
		t.Errorf("metrics output missing html sample:\n%s", body)
	}
}
