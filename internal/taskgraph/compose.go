package taskgraph

import "context"

// Kind distinguishes composition shapes.
type Kind string

const (
	KindSeries   Kind = "series"
	KindParallel Kind = "parallel"
)

// Composite is a named task that runs a graph of member tasks with the
// scheduler carried by its context.
type Composite struct {
	name    string
	kind    Kind
	members []Task
	graph   *Graph
	err     error
}

// Series returns a task that runs members one after another. Member N+1 starts
// only after member N completes; the first failure skips the rest.
func Series(name string, members ...Task) *Composite {
	c := &Composite{name: name, kind: KindSeries, members: members, graph: New()}
	prev := ""
	for _, m := range members {
		var deps []string
		if prev != "" {
			deps = []string{prev}
		}
		if err := c.graph.Add(m, deps...); err != nil && c.err == nil {
			c.err = err
		}
		prev = m.Name()
	}
	return c
}

// Parallel returns a task that starts all members at once, bounded by the
// scheduler's concurrency limit, and completes when all of them finish.
func Parallel(name string, members ...Task) *Composite {
	c := &Composite{name: name, kind: KindParallel, members: members, graph: New()}
	for _, m := range members {
		if err := c.graph.Add(m); err != nil && c.err == nil {
			c.err = err
		}
	}
	return c
}

// Name returns the composition name.
func (c *Composite) Name() string { return c.name }

// Kind returns whether c is a series or a parallel composition.
func (c *Composite) Kind() Kind { return c.kind }

// Members returns the member tasks in declaration order.
func (c *Composite) Members() []Task {
	return append([]Task(nil), c.members...)
}

// Run executes the members and returns the first failure.
func (c *Composite) Run(ctx context.Context) error {
	if c.err != nil {
		return c.err
	}
	_, err := FromContext(ctx).Run(ctx, c.graph)
	return err
}

// Describe renders a task tree as "series(a, parallel(b, c))".
func Describe(t Task) string {
	c, ok := t.(*Composite)
	if !ok {
		return t.Name()
	}
	s := string(c.kind) + "("
	for i, m := range c.members {
		if i > 0 {
			s += ", "
		}
		s += Describe(m)
	}
	return s + ")"
}
