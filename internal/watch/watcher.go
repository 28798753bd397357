package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AndreyAkinshin/sitepipe/internal/fileset"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
	"github.com/AndreyAkinshin/sitepipe/internal/taskgraph"
)

// Binding runs Task whenever a file matching Selector changes.
type Binding struct {
	Name     string
	Selector fileset.Selector
	Task     taskgraph.Task
	Policy   Policy
}

// Options configures a Watcher.
type Options struct {
	Debounce  time.Duration
	QueueSize int
	Out       *output.Writer

	// Run executes a triggered task. It defaults to calling task.Run.
	Run func(ctx context.Context, task taskgraph.Task) error
}

// dropCounter is implemented by sources that discard events under load.
type dropCounter interface {
	Dropped() int64
}

type boundQueue struct {
	binding  Binding
	queue    *RunQueue
	debounce *Debouncer
}

// Watcher dispatches change events to bindings.
type Watcher struct {
	bindings []*boundQueue
	opts     Options
	out      *output.Writer
}

// New validates the bindings and returns a Watcher for them.
func New(bindings []Binding, opts Options) (*Watcher, error) {
	out := opts.Out
	if out == nil {
		out = output.Discard()
	}
	if opts.Run == nil {
		opts.Run = func(ctx context.Context, task taskgraph.Task) error { return task.Run(ctx) }
	}

	seen := make(map[string]bool)
	w := &Watcher{opts: opts, out: out}
	for _, b := range bindings {
		if b.Name == "" {
			return nil, fmt.Errorf("watch binding has no name")
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("duplicate watch binding %q", b.Name)
		}
		seen[b.Name] = true
		if b.Task == nil {
			return nil, fmt.Errorf("watch binding %q has no task", b.Name)
		}
		if err := b.Selector.Validate(); err != nil {
			return nil, fmt.Errorf("watch binding %q: %w", b.Name, err)
		}
		if _, err := ParsePolicy(string(b.Policy)); err != nil {
			return nil, fmt.Errorf("watch binding %q: %w", b.Name, err)
		}
		w.bindings = append(w.bindings, &boundQueue{binding: b})
	}
	return w, nil
}

// Bindings returns the bindings in registration order.
func (w *Watcher) Bindings() []Binding {
	out := make([]Binding, len(w.bindings))
	for i, bq := range w.bindings {
		out[i] = bq.binding
	}
	return out
}

// Run dispatches events from src until ctx is canceled or src closes, then
// waits for in-flight runs. Task failures are reported and do not stop
// watching.
func (w *Watcher) Run(ctx context.Context, src Source) error {
	for _, bq := range w.bindings {
		task := bq.binding.Task
		bq.queue = NewRunQueue(bq.binding.Name, bq.binding.Policy, w.opts.QueueSize,
			func(ctx context.Context) error { return w.opts.Run(ctx, task) },
			w.report)
		bq.debounce = NewDebouncer(w.opts.Debounce, func() {
			if !bq.queue.Trigger(ctx) {
				w.out.WarningSimple("watch %s: run queue full, change dropped", bq.binding.Name)
			}
		})
	}
	defer w.stop()

	counter, _ := src.(dropCounter)
	var dropped int64
	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if counter != nil {
				if n := counter.Dropped(); n > dropped {
					w.out.Debug("watch: %d change event(s) dropped, event buffer full", n-dropped)
					dropped = n
				}
			}
			w.Dispatch(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.out.WarningSimple("watch: %v", err)
		}
	}
}

// Dispatch triggers every binding whose selector matches the event. It
// returns the names of the triggered bindings.
func (w *Watcher) Dispatch(ev Event) []string {
	var hit []string
	for _, bq := range w.bindings {
		if bq.debounce == nil || !bq.binding.Selector.Match(ev.Rel) {
			continue
		}
		w.out.Debug("watch %s: %s %s", bq.binding.Name, ev.Op, ev.Rel)
		bq.debounce.Trigger()
		hit = append(hit, bq.binding.Name)
	}
	return hit
}

func (w *Watcher) report(name string, err error) {
	if err != nil && !isCanceled(err) {
		w.out.ErrorPrefix("watch %s: %v", name, err)
	}
}

func (w *Watcher) stop() {
	for _, bq := range w.bindings {
		bq.debounce.Stop()
		bq.queue.Stop()
	}
	for _, bq := range w.bindings {
		bq.queue.Wait()
		if runs, _, dropped := bq.queue.Stats(); runs > 0 || dropped > 0 {
			w.out.Debug("watch %s: %d run(s), %d trigger(s) dropped", bq.binding.Name, runs, dropped)
		}
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
