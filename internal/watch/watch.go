// Package watch turns file-system changes into task runs.
//
// An FSWatcher reports changes below a root. A Watcher matches each change
// against its bindings, debounces bursts per binding and hands the trigger to
// the binding's RunQueue, which keeps at most one run of the bound task in
// flight.
package watch

import (
	"errors"
	"fmt"
	"time"
)

// ErrWatcherClosed is returned when adding paths to a closed FSWatcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Op represents the type of file-system operation.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a change below the watched root.
type Event struct {
	Path      string // Absolute path
	Rel       string // Slash path relative to the watched root
	Op        Op
	Timestamp time.Time
}

// Source delivers change events.
type Source interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// Policy decides what happens to triggers that arrive while a run is in flight.
type Policy string

const (
	// PolicyCoalesce collapses any number of triggers during a run into one
	// follow-up run.
	PolicyCoalesce Policy = "coalesce"
	// PolicyQueue runs once per trigger, in order, up to the queue size.
	PolicyQueue Policy = "queue"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCoalesce, PolicyQueue:
		return p, nil
	case "":
		return PolicyCoalesce, nil
	default:
		return "", fmt.Errorf("unknown watch policy %q", s)
	}
}
