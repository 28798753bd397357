package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// FailurePolicy decides what happens to running tasks when one fails.
type FailurePolicy string

const (
	// FailFast cancels the context of running siblings and starts nothing new.
	FailFast FailurePolicy = "fail-fast"
	// FinishRunning starts nothing new but lets running siblings complete.
	FinishRunning FailurePolicy = "finish-running"
)

// Observer receives task lifecycle events. Nested compositions run their own
// graphs, so implementations must be safe for concurrent use.
type Observer interface {
	TaskStarted(name string)
	TaskFinished(name string, d time.Duration, err error)
	TaskSkipped(name, reason string)
}

// Options configures a Scheduler.
type Options struct {
	Concurrency int // Maximum simultaneously running leaf tasks; <1 means 1
	Policy      FailurePolicy
	Observer    Observer
}

// Scheduler runs graphs. One scheduler is shared by nested compositions, so
// the concurrency limit applies to leaf tasks across the whole run.
type Scheduler struct {
	policy   FailurePolicy
	slots    chan struct{}
	observer Observer
}

// NewScheduler creates a scheduler.
func NewScheduler(opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Policy == "" {
		opts.Policy = FailFast
	}
	return &Scheduler{
		policy:   opts.Policy,
		slots:    make(chan struct{}, opts.Concurrency),
		observer: opts.Observer,
	}
}

// Concurrency returns the leaf task limit.
func (s *Scheduler) Concurrency() int { return cap(s.slots) }

// Policy returns the failure policy.
func (s *Scheduler) Policy() FailurePolicy { return s.policy }

type schedulerKey struct{}

// WithScheduler returns a context carrying s for nested compositions.
func WithScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey{}, s)
}

// FromContext returns the scheduler carried by ctx, or a sequential fail-fast
// scheduler when there is none.
func FromContext(ctx context.Context) *Scheduler {
	if s, ok := ctx.Value(schedulerKey{}).(*Scheduler); ok {
		return s
	}
	return NewScheduler(Options{Concurrency: 1})
}

// TaskError attributes a failure to the task that produced it.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("[%s] %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// attribute wraps err with the task name unless a nested task already did.
func attribute(name string, err error) error {
	var te *TaskError
	if errors.As(err, &te) {
		return err
	}
	return &TaskError{Task: name, Err: err}
}

// ErrStopped is returned by a nested graph whose members were skipped
// because a task elsewhere in the same run failed.
var ErrStopped = errors.New("run stopped after a failure")

// stopSignal is shared by every graph of one top-level run. The first
// failure anywhere raises it and no graph dispatches new tasks afterwards.
type stopSignal struct {
	once sync.Once
	done chan struct{}
}

func (s *stopSignal) raise() { s.once.Do(func() { close(s.done) }) }

func (s *stopSignal) raised() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type stopKey struct{}

// runStop returns the stop signal of the run ctx belongs to, creating one
// for a top-level run.
func runStop(ctx context.Context) (context.Context, *stopSignal) {
	if stop, ok := ctx.Value(stopKey{}).(*stopSignal); ok {
		return ctx, stop
	}
	stop := &stopSignal{done: make(chan struct{})}
	return context.WithValue(ctx, stopKey{}, stop), stop
}

type finished struct {
	name     string
	err      error
	duration time.Duration
}

// Run executes g. Tasks start in dependency order as soon as their
// dependencies complete and a slot is free. When a task fails, no new task
// starts in g or in any graph nested in the same run; under FailFast the
// running ones are canceled. Tasks that never started are marked skipped.
// The returned error is the first failure.
func (s *Scheduler) Run(ctx context.Context, g *Graph) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	order, _ := g.Order()
	res := newResult(order)
	if len(order) == 0 {
		return res, nil
	}

	ctx = WithScheduler(ctx, s)
	ctx, stop := runStop(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	remaining := make(map[string]int, len(order))
	for _, name := range order {
		remaining[name] = len(g.nodes[name].deps)
	}
	dependents := g.dependents()

	events := make(chan finished)
	dispatched := make(map[string]bool, len(order))
	stopped := false
	inFlight := 0
	var firstErr error

	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
			stopped = true
			stop.raise()
			if s.policy == FailFast {
				cancel()
			}
		}
	}

	nextReady := func() string {
		if stopped || stop.raised() || ctx.Err() != nil {
			return ""
		}
		for _, name := range order {
			if !dispatched[name] && remaining[name] == 0 {
				return name
			}
		}
		return ""
	}

	start := func(name string, holdsSlot bool) {
		dispatched[name] = true
		inFlight++
		record(res.transition(name, StateRunning))
		s.notifyStarted(name)
		go s.execute(runCtx, g.nodes[name].task, holdsSlot, events)
	}

	handle := func(ev finished) {
		inFlight--
		switch {
		case ev.err == nil:
			record(res.transition(ev.name, StateCompleted))
			for _, d := range dependents[ev.name] {
				remaining[d]--
			}
		case firstErr != nil && s.policy == FailFast && runCtx.Err() != nil,
			errors.Is(ev.err, ErrStopped):
			record(res.transition(ev.name, StateCanceled))
		default:
			record(res.transition(ev.name, StateFailed))
			record(attribute(ev.name, ev.err))
		}
		s.notifyFinished(ev.name, ev.duration, ev.err)
	}

	for {
		next := nextReady()
		if next == "" && inFlight == 0 {
			break
		}

		// Compositions schedule their members through the same slots.
		if next != "" {
			if _, composite := g.nodes[next].task.(*Composite); composite {
				start(next, false)
				continue
			}
		}

		var slots chan struct{}
		var raised <-chan struct{}
		if next != "" {
			slots = s.slots
			raised = stop.done
		}
		select {
		case slots <- struct{}{}:
			start(next, true)
		case <-raised:
		case ev := <-events:
			handle(ev)
		case <-ctx.Done():
			if inFlight > 0 {
				handle(<-events)
			}
		}
	}

	for _, name := range order {
		if res.states[name] != StatePending {
			continue
		}
		_ = res.transition(name, StateSkipped)
		s.notifySkipped(name, skipReason(g, res, name))
	}

	if firstErr == nil && res.Count(StateSkipped) > 0 {
		switch {
		case ctx.Err() != nil:
			firstErr = ctx.Err()
		case stop.raised():
			firstErr = ErrStopped
		}
	}
	return res, firstErr
}

// execute runs one task on its own goroutine. The slot is released only
// after the run loop has seen the result, so a failure is always recorded
// before the slot can start another task.
func (s *Scheduler) execute(ctx context.Context, task Task, holdsSlot bool, events chan<- finished) {
	began := time.Now()
	err := task.Run(ctx)
	events <- finished{name: task.Name(), err: err, duration: time.Since(began)}
	if holdsSlot {
		<-s.slots
	}
}

func skipReason(g *Graph, res *Result, name string) string {
	for _, dep := range g.nodes[name].deps {
		if st := res.states[dep]; st != StateCompleted {
			return fmt.Sprintf("dependency %q %s", dep, st)
		}
	}
	return "run stopped before start"
}

func (s *Scheduler) notifyStarted(name string) {
	if s.observer != nil {
		s.observer.TaskStarted(name)
	}
}

func (s *Scheduler) notifyFinished(name string, d time.Duration, err error) {
	if s.observer != nil {
		s.observer.TaskFinished(name, d, err)
	}
}

func (s *Scheduler) notifySkipped(name, reason string) {
	if s.observer != nil {
		s.observer.TaskSkipped(name, reason)
	}
}
