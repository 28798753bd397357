package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// gatedRun blocks every run until release is called and tracks how many
// runs overlap.
type gatedRun struct {
	gate     chan struct{}
	started  chan struct{}
	inFlight atomic.Int32
	peak     atomic.Int32
	runs     atomic.Int32
}

func newGatedRun() *gatedRun {
	return &gatedRun{gate: make(chan struct{}), started: make(chan struct{}, 64)}
}

func (g *gatedRun) run(ctx context.Context) error {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.runs.Add(1)
	g.started <- struct{}{}
	select {
	case <-g.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gatedRun) release() { close(g.gate) }

func TestRunQueue_Coalesce(t *testing.T) {
	g := newGatedRun()
	q := NewRunQueue("style", PolicyCoalesce, 0, g.run, nil)
	ctx := context.Background()

	q.Trigger(ctx)
	<-g.started
	for i := 0; i < 5; i++ {
		if !q.Trigger(ctx) {
			t.Fatal("Trigger() dropped a coalesced trigger")
		}
	}
	if _, pending, _ := q.Stats(); pending != 1 {
		t.Errorf("pending = %d, want 1", pending)
	}

	g.release()
	q.Wait()

	if got := g.runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2 (one run plus one follow-up)", got)
	}
	if g.peak.Load() != 1 {
		t.Errorf("peak in-flight runs = %d, want 1", g.peak.Load())
	}
}

func TestRunQueue_Queue(t *testing.T) {
	g := newGatedRun()
	q := NewRunQueue("script", PolicyQueue, 3, g.run, nil)
	ctx := context.Background()

	q.Trigger(ctx)
	<-g.started
	accepted := 0
	for i := 0; i < 5; i++ {
		if q.Trigger(ctx) {
			accepted++
		}
	}
	if accepted != 3 {
		t.Errorf("accepted %d triggers, want 3", accepted)
	}

	g.release()
	q.Wait()

	runs, pending, dropped := q.Stats()
	if runs != 4 || pending != 0 || dropped != 2 {
		t.Errorf("Stats() = %d runs, %d pending, %d dropped; want 4, 0, 2", runs, pending, dropped)
	}
	if g.peak.Load() != 1 {
		t.Errorf("peak in-flight runs = %d, want 1", g.peak.Load())
	}
}

func TestRunQueue_RestartsAfterIdle(t *testing.T) {
	var runs atomic.Int32
	q := NewRunQueue("html", PolicyCoalesce, 0, func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	q.Trigger(context.Background())
	q.Wait()
	q.Trigger(context.Background())
	q.Wait()
	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}
}

func TestRunQueue_ReportsResults(t *testing.T) {
	boom := errors.New("boom")
	var mu sync.Mutex
	var got []error
	q := NewRunQueue("images", PolicyCoalesce, 0, func(context.Context) error { return boom }, func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if name != "images" {
			t.Errorf("done name = %q", name)
		}
		got = append(got, err)
	})

	q.Trigger(context.Background())
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || !errors.Is(got[0], boom) {
		t.Errorf("done received %v", got)
	}
}

func TestRunQueue_CanceledDropsPending(t *testing.T) {
	g := newGatedRun()
	q := NewRunQueue("sprite", PolicyQueue, 4, g.run, nil)
	ctx, cancel := context.WithCancel(context.Background())

	q.Trigger(ctx)
	<-g.started
	q.Trigger(ctx)
	q.Trigger(ctx)
	cancel()
	q.Wait()

	if got := g.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1 after cancellation", got)
	}
}

func TestRunQueue_StopRefusesTriggers(t *testing.T) {
	g := newGatedRun()
	q := NewRunQueue("html", PolicyQueue, 4, g.run, nil)
	ctx := context.Background()

	q.Trigger(ctx)
	<-g.started
	q.Trigger(ctx)
	q.Stop()
	q.Trigger(ctx)

	g.release()
	q.Wait()

	if got := g.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want only the run in flight at Stop", got)
	}

	// A trigger racing with shutdown must not start a run once stopped.
	q.Trigger(ctx)
	q.Wait()
	if got := g.runs.Load(); got != 1 {
		t.Errorf("runs = %d after a trigger on a stopped queue, want 1", got)
	}
}
