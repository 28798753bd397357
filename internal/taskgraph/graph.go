// Package taskgraph runs named tasks as a dependency graph with bounded
// concurrency. Series and parallel compositions are graphs too.
package taskgraph

import (
	"context"
	"fmt"
	"sort"
)

// Task is a named unit of work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (t *funcTask) Name() string                  { return t.name }
func (t *funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

// Func returns a Task that calls fn.
func Func(name string, fn func(ctx context.Context) error) Task {
	return &funcTask{name: name, fn: fn}
}

type node struct {
	task Task
	deps []string
}

// Graph is a set of named tasks with dependency edges. Edges point from a
// task to the tasks that must complete before it starts.
type Graph struct {
	nodes map[string]*node
	names []string // insertion order
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// Add inserts a task that starts after deps complete. Dependencies may be
// added later; Validate checks that they exist.
func (g *Graph) Add(task Task, deps ...string) error {
	name := task.Name()
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("task %q is already in the graph", name)
	}
	g.nodes[name] = &node{task: task, deps: append([]string(nil), deps...)}
	g.names = append(g.names, name)
	return nil
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.names) }

// Names returns task names in insertion order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// Task returns the task registered under name.
func (g *Graph) Task(name string) (Task, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return nil, false
	}
	return n.task, true
}

// Deps returns the dependencies of name.
func (g *Graph) Deps(name string) []string {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), n.deps...)
}

// Validate checks the graph for self-references, undefined dependencies and cycles.
func (g *Graph) Validate() error {
	for _, name := range g.names {
		for _, dep := range g.nodes[name].deps {
			if dep == name {
				return fmt.Errorf("%q depends on itself", name)
			}
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("%q depends on undefined task %q", name, dep)
			}
		}
	}

	_, err := g.Order()
	return err
}

// Order returns task names so that dependencies appear before dependents.
// Ties keep insertion order, so the result is deterministic: roots are
// visited in insertion order and so are each task's dependencies, whatever
// order they were declared in.
func (g *Graph) Order() ([]string, error) {
	result := make([]string, 0, len(g.names))
	index := make(map[string]int, len(g.names))
	for i, name := range g.names {
		index[name] = i
	}
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		if inStack[name] {
			return fmt.Errorf("circular dependency detected: %s", cyclePath(stack, name))
		}
		if visited[name] {
			return nil
		}

		n, exists := g.nodes[name]
		if !exists {
			return fmt.Errorf("task %q not found in graph", name)
		}

		inStack[name] = true
		stack = append(stack, name)

		for _, dep := range byInsertion(n.deps, index) {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		inStack[name] = false
		visited[name] = true
		result = append(result, name)

		return nil
	}

	for _, name := range g.names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// byInsertion sorts deps by graph insertion order. Unknown names sort last
// in declared order so visit reports them.
func byInsertion(deps []string, index map[string]int) []string {
	sorted := append([]string(nil), deps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, aok := index[sorted[i]]
		b, bok := index[sorted[j]]
		if !aok || !bok {
			return aok && !bok
		}
		return a < b
	})
	return sorted
}

// cyclePath renders the part of the DFS stack that closes the cycle at name.
func cyclePath(stack []string, name string) string {
	start := 0
	for i, s := range stack {
		if s == name {
			start = i
			break
		}
	}
	path := ""
	for _, s := range stack[start:] {
		path += s + " -> "
	}
	return path + name
}

// dependents maps each task to the tasks that depend on it.
func (g *Graph) dependents() map[string][]string {
	out := make(map[string][]string, len(g.names))
	for _, name := range g.names {
		for _, dep := range g.nodes[name].deps {
			out[dep] = append(out[dep], name)
		}
	}
	return out
}
