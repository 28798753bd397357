package taskgraph

import "fmt"

// State is the runtime state of a task within one scheduler run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled" // Stopped by a sibling's failure under fail-fast
	StateSkipped   State = "skipped"  // Never started
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled, StateSkipped:
		return true
	default:
		return false
	}
}

func allowedTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateSkipped
	case StateRunning:
		return to == StateCompleted || to == StateFailed || to == StateCanceled
	default:
		return false
	}
}

// Result records the outcome of one scheduler run.
type Result struct {
	states map[string]State
	order  []string
}

func newResult(order []string) *Result {
	r := &Result{states: make(map[string]State, len(order)), order: order}
	for _, name := range order {
		r.states[name] = StatePending
	}
	return r
}

func (r *Result) transition(name string, to State) error {
	from, ok := r.states[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	if !allowedTransition(from, to) {
		return fmt.Errorf("invalid transition for %q: %s -> %s", name, from, to)
	}
	r.states[name] = to
	return nil
}

// State returns the final state of a task.
func (r *Result) State(name string) State {
	return r.states[name]
}

// Names returns the tasks in the order they were scheduled.
func (r *Result) Names() []string {
	return append([]string(nil), r.order...)
}

// Count returns the number of tasks that ended in state s.
func (r *Result) Count(s State) int {
	n := 0
	for _, st := range r.states {
		if st == s {
			n++
		}
	}
	return n
}
