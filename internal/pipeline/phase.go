package pipeline

import (
	"fmt"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Phase is a step of a top-level command.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCleaning  Phase = "cleaning"
	PhaseBuilding  Phase = "building"
	PhaseCleanup   Phase = "cleanup"
	PhaseServing   Phase = "serving"
	PhasePackaging Phase = "packaging"
	PhaseUploading Phase = "uploading"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

var titleCaser = cases.Title(language.English)

// Title returns the phase name for headers, e.g. "Cleaning".
func (p Phase) Title() string {
	return titleCaser.String(string(p))
}

// transitions lists the forward edges. Any non-terminal phase may also fail.
//
//	build/dev: idle -> cleaning -> building -> (cleanup) -> serving -> done
//	deploy:    idle -> packaging -> uploading -> done
var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseCleaning, PhasePackaging, PhaseServing},
	PhaseCleaning:  {PhaseBuilding, PhaseDone},
	PhaseBuilding:  {PhaseCleanup, PhaseServing, PhaseDone},
	PhaseCleanup:   {PhaseServing, PhaseDone},
	PhaseServing:   {PhaseDone},
	PhasePackaging: {PhaseUploading},
	PhaseUploading: {PhaseDone},
}

func allowed(from, to Phase) bool {
	if to == PhaseFailed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine tracks the phase of one command run. It is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	current  Phase
	history  []Phase
	onChange func(from, to Phase)
}

// NewMachine returns a machine in PhaseIdle. onChange, if set, is called
// after every accepted transition.
func NewMachine(onChange func(from, to Phase)) *Machine {
	return &Machine{current: PhaseIdle, history: []Phase{PhaseIdle}, onChange: onChange}
}

// Current returns the current phase.
func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns every phase entered, starting with PhaseIdle.
func (m *Machine) History() []Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Phase(nil), m.history...)
}

// Transition moves to the next phase or returns an error naming the
// rejected edge.
func (m *Machine) Transition(to Phase) error {
	m.mu.Lock()
	from := m.current
	if !allowed(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid phase transition %s -> %s", from, to)
	}
	m.current = to
	m.history = append(m.history, to)
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}
