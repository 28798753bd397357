// Package mocks provides shared test doubles for sitepipe packages.
package mocks

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder tracks start and finish events across several mock tasks.
// It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	events  []string
	running int
	peak    int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start:"+name)
	r.running++
	if r.running > r.peak {
		r.peak = r.running
	}
}

func (r *Recorder) finish(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "finish:"+name)
	r.running--
}

// Events returns "start:<name>" and "finish:<name>" entries in the order they happened.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Started returns task names in start order.
func (r *Recorder) Started() []string {
	var names []string
	for _, e := range r.Events() {
		if name, ok := strings.CutPrefix(e, "start:"); ok {
			names = append(names, name)
		}
	}
	return names
}

// Peak returns the highest number of tasks observed running at once.
func (r *Recorder) Peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

// Task implements taskgraph.Task for testing.
// Use NewTask() to create instances with a fluent builder API.
type Task struct {
	name      string
	err       error
	delay     time.Duration
	blockCtx  bool
	recorder  *Recorder
	started   chan struct{}
	startOnce sync.Once

	// RunFunc is called by Run after the delay. If nil, Run returns the configured error.
	RunFunc func(ctx context.Context) error

	runCount  int32
	cancelled atomic.Bool
}

// NewTask creates a new mock task with the given name.
func NewTask(name string) *Task {
	return &Task{name: name, started: make(chan struct{})}
}

// WithErr makes Run fail with err.
func (m *Task) WithErr(err error) *Task {
	m.err = err
	return m
}

// WithDelay makes Run sleep for d (or until the context is done) first.
func (m *Task) WithDelay(d time.Duration) *Task {
	m.delay = d
	return m
}

// BlockUntilCanceled makes Run wait for context cancellation and return its error.
func (m *Task) BlockUntilCanceled() *Task {
	m.blockCtx = true
	return m
}

// WithRecorder shares event tracking with other mocks.
func (m *Task) WithRecorder(r *Recorder) *Task {
	m.recorder = r
	return m
}

// WithRunFunc sets the function called by Run.
func (m *Task) WithRunFunc(fn func(ctx context.Context) error) *Task {
	m.RunFunc = fn
	return m
}

// Name returns the task name.
func (m *Task) Name() string { return m.name }

// Run records the call and returns the configured outcome.
func (m *Task) Run(ctx context.Context) error {
	atomic.AddInt32(&m.runCount, 1)
	m.startOnce.Do(func() { close(m.started) })
	if m.recorder != nil {
		m.recorder.start(m.name)
		defer m.recorder.finish(m.name)
	}

	if m.blockCtx {
		<-ctx.Done()
		m.cancelled.Store(true)
		return ctx.Err()
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			m.cancelled.Store(true)
			return ctx.Err()
		}
	}

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return m.err
}

// Test inspection methods

// RunCount returns the number of times Run was called.
func (m *Task) RunCount() int32 {
	return atomic.LoadInt32(&m.runCount)
}

// Started is closed when Run is first called.
func (m *Task) Started() <-chan struct{} {
	return m.started
}

// Canceled reports whether Run returned because its context was canceled.
func (m *Task) Canceled() bool {
	return m.cancelled.Load()
}
