package watch

import (
	"context"
	"sync"
)

// DefaultQueueSize bounds PolicyQueue when no size is configured.
const DefaultQueueSize = 16

// RunQueue serializes the runs of one binding. At most one run is in flight;
// triggers that arrive meanwhile are coalesced or queued according to the
// policy.
type RunQueue struct {
	name   string
	policy Policy
	size   int
	run    func(ctx context.Context) error
	done   func(name string, err error)

	mu      sync.Mutex
	stopped bool
	running bool
	pending int
	runs    int
	dropped int
	wg      sync.WaitGroup
}

// NewRunQueue returns a queue that calls run for each accepted trigger and
// reports every completed run to done, which may be nil.
func NewRunQueue(name string, policy Policy, size int, run func(ctx context.Context) error, done func(name string, err error)) *RunQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if policy == "" {
		policy = PolicyCoalesce
	}
	return &RunQueue{name: name, policy: policy, size: size, run: run, done: done}
}

// Trigger requests a run. It returns false when the trigger was dropped
// because the queue is full. Triggers after Stop are ignored.
func (q *RunQueue) Trigger(ctx context.Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return true
	}
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.loop(ctx)
		return true
	}

	switch q.policy {
	case PolicyQueue:
		if q.pending >= q.size {
			q.dropped++
			return false
		}
		q.pending++
	default:
		q.pending = 1
	}
	return true
}

func (q *RunQueue) loop(ctx context.Context) {
	defer q.wg.Done()
	for {
		err := q.run(ctx)

		q.mu.Lock()
		q.runs++
		q.mu.Unlock()
		if q.done != nil {
			q.done(q.name, err)
		}

		q.mu.Lock()
		if q.pending == 0 || q.stopped || ctx.Err() != nil {
			q.pending = 0
			q.running = false
			q.mu.Unlock()
			return
		}
		q.pending--
		q.mu.Unlock()
	}
}

// Stop refuses further triggers and drops waiting ones. A run in flight
// completes; Wait blocks until it does.
func (q *RunQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.pending = 0
}

// Wait blocks until no run is in flight.
func (q *RunQueue) Wait() {
	q.wg.Wait()
}

// Stats returns the completed runs, triggers waiting and triggers dropped.
func (q *RunQueue) Stats() (runs, pending, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runs, q.pending, q.dropped
}
