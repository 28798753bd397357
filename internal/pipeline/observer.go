package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AndreyAkinshin/sitepipe/internal/output"
	"github.com/AndreyAkinshin/sitepipe/internal/taskgraph"
)

// logObserver prints task progress. Compositions stay quiet: their members
// already report, and a composite failure repeats a member's.
type logObserver struct {
	out *output.Writer
}

func newLogObserver(out *output.Writer) taskgraph.Observer {
	return &logObserver{out: out}
}

func (o *logObserver) TaskStarted(name string) {
	if !isComposite(name) {
		o.out.TaskStart(name)
	}
}

func (o *logObserver) TaskFinished(name string, d time.Duration, err error) {
	if isComposite(name) {
		return
	}
	switch {
	case errors.Is(err, context.Canceled):
		o.out.TaskSkipped(name, "canceled")
	case err != nil:
		o.out.TaskFailed(name, err)
	default:
		o.out.TaskSuccess(name, d)
	}
}

func (o *logObserver) TaskSkipped(name, reason string) {
	if !isComposite(name) {
		o.out.TaskSkipped(name, reason)
	}
}

var compositeNames = map[string]bool{
	"devAssets":        true,
	"buildAssets":      true,
	"devScriptReload":  true,
	"devSpriteReload":  true,
	"htmlReload":       true,
	"prodScriptReload": true,
	"imagesReload":     true,
	"prodSpriteReload": true,
}

func isComposite(name string) bool {
	return compositeNames[name]
}

// taskResult is one finished leaf task of a run.
type taskResult struct {
	name     string
	duration time.Duration
	err      error
}

// summaryObserver records leaf task results in completion order.
type summaryObserver struct {
	mu      sync.Mutex
	results []taskResult
}

func (s *summaryObserver) TaskStarted(string) {}

func (s *summaryObserver) TaskFinished(name string, d time.Duration, err error) {
	if isComposite(name) || errors.Is(err, context.Canceled) {
		return
	}
	s.mu.Lock()
	s.results = append(s.results, taskResult{name: name, duration: d, err: err})
	s.mu.Unlock()
}

func (s *summaryObserver) TaskSkipped(string, string) {}

// print writes one line per recorded task under title.
func (s *summaryObserver) print(out *output.Writer, title string) {
	s.mu.Lock()
	results := append([]taskResult(nil), s.results...)
	s.mu.Unlock()
	if len(results) == 0 {
		return
	}
	out.SummaryHeader(title)
	for _, r := range results {
		msg := ""
		if r.err != nil {
			msg = r.err.Error()
		}
		out.SummaryAction(r.name, r.err == nil, output.FormatDuration(r.duration), msg)
	}
}
