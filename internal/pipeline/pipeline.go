// Package pipeline assembles the site build from configuration: the named
// tasks, the dev and build compositions, watch bindings, the live-reload
// server and deploys.
//
// Every top-level command is one run with its own scheduler, output claims
// and run ID. A command walks a phase Machine:
//
//	dev:    idle -> cleaning -> building -> serving -> done
//	build:  idle -> cleaning -> building -> cleanup -> serving|done
//	deploy: idle -> packaging -> uploading -> done
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	"github.com/AndreyAkinshin/sitepipe/internal/deploy"
	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/livereload"
	"github.com/AndreyAkinshin/sitepipe/internal/metrics"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
	"github.com/AndreyAkinshin/sitepipe/internal/taskgraph"
	"github.com/AndreyAkinshin/sitepipe/internal/transform"
)

// Options configures a Pipeline.
type Options struct {
	SourceDir string // Absolute source tree
	BuildDir  string // Absolute build tree
	Root      string // Project root, used to find the default deploy remote
	Config    *config.Config
	Out       *output.Writer

	// Optional collaborators. Nil values select the defaults.
	Metrics  *metrics.Collector
	Sass     *transform.SassCompiler
	Encoder  transform.Encoder
	Deployer deploy.Deployer

	// OnPhase is called after every phase transition.
	OnPhase func(from, to Phase)
}

// Pipeline owns the tasks of one project.
type Pipeline struct {
	cfg              *config.Config
	root             string
	srcDir           string
	buildDir         string
	out              *output.Writer
	metrics          *metrics.Collector
	sass             *transform.SassCompiler
	ownsSassCompiler bool
	encoder          transform.Encoder
	deployer         deploy.Deployer
	onPhase          func(from, to Phase)
	workers          int

	tasks     map[string]taskgraph.Task
	names     []string
	copyTasks []string
	summaries map[string]string

	serverMu sync.Mutex
	server   *livereload.Server
}

// New creates the pipeline for cfg. cfg must have defaults applied.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if opts.SourceDir == "" || opts.BuildDir == "" {
		return nil, errors.New("pipeline: source and build directories are required")
	}
	out := opts.Out
	if out == nil {
		out = output.Discard()
	}

	p := &Pipeline{
		cfg:      opts.Config,
		root:     opts.Root,
		srcDir:   opts.SourceDir,
		buildDir: opts.BuildDir,
		out:      out,
		metrics:  opts.Metrics,
		sass:     opts.Sass,
		encoder:  opts.Encoder,
		deployer: opts.Deployer,
		onPhase:  opts.OnPhase,
		workers:  taskgraph.Workers(opts.Config.Scheduler.Concurrency, out),
		tasks:    make(map[string]taskgraph.Task),
	}
	p.summaries = make(map[string]string)
	if p.sass == nil {
		p.sass = transform.NewSassCompiler(out)
		p.ownsSassCompiler = true
	}
	if p.encoder == nil {
		p.encoder = transform.CWebP{Command: opts.Config.Images.WebP.Command}
	}
	p.buildTasks()
	return p, nil
}

// Close releases the Sass compiler when the pipeline created it.
func (p *Pipeline) Close() error {
	if p.ownsSassCompiler {
		return p.sass.Close()
	}
	return nil
}

// Task returns a named task.
func (p *Pipeline) Task(name string) (taskgraph.Task, bool) {
	t, ok := p.tasks[name]
	return t, ok
}

// TaskNames returns the named tasks in registration order.
func (p *Pipeline) TaskNames() []string {
	return append([]string(nil), p.names...)
}

// Workers returns the concurrency limit of every run.
func (p *Pipeline) Workers() int { return p.workers }

// Server returns the running live-reload server, or nil.
func (p *Pipeline) Server() *livereload.Server {
	p.serverMu.Lock()
	defer p.serverMu.Unlock()
	return p.server
}

func (p *Pipeline) setServer(s *livereload.Server) {
	p.serverMu.Lock()
	p.server = s
	p.serverMu.Unlock()
}

func (p *Pipeline) mustTask(name string) taskgraph.Task {
	t, ok := p.tasks[name]
	if !ok {
		panic("pipeline: unknown task " + name)
	}
	return t
}

// DevAssets is the parallel group the dev command builds.
func (p *Pipeline) DevAssets() taskgraph.Task {
	return taskgraph.Parallel("devAssets",
		p.mustTask(TaskDevStyle), p.mustTask(TaskDevScript), p.mustTask(TaskDevSprite))
}

// BuildAssets is the parallel group the build command builds.
func (p *Pipeline) BuildAssets() taskgraph.Task {
	members := []taskgraph.Task{
		p.mustTask(TaskHTML),
		p.mustTask(TaskProdStyle),
		p.mustTask(TaskProdScript),
	}
	for _, name := range p.copyTasks {
		members = append(members, p.mustTask(name))
	}
	members = append(members,
		p.mustTask(TaskImages),
		p.mustTask(TaskImagesWebP),
		p.mustTask(TaskProdSprite))
	return taskgraph.Parallel("buildAssets", members...)
}

// Graphs describes the composite commands for listing.
func (p *Pipeline) Graphs() map[string]string {
	serve := taskgraph.Func("serve", nil)
	return map[string]string{
		"dev": taskgraph.Describe(taskgraph.Series("dev",
			p.mustTask(TaskClean), p.DevAssets(), serve)),
		"build": taskgraph.Describe(taskgraph.Series("build",
			p.mustTask(TaskClean), p.BuildAssets(), p.mustTask(TaskCleanJunk), serve)),
		"deploy": "series(package, upload)",
	}
}

// run is one top-level execution.
type run struct {
	id      string
	kind    string
	ctx     context.Context
	sched   *taskgraph.Scheduler
	summary *summaryObserver
	started time.Time
}

type runIDKey struct{}

// RunID returns the ID of the run executing ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func (p *Pipeline) newRun(ctx context.Context, kind string) *run {
	summary := &summaryObserver{}
	observers := []taskgraph.Observer{newLogObserver(p.out), summary}
	if p.metrics != nil {
		observers = append(observers, p.metrics)
	}
	sched := taskgraph.NewScheduler(taskgraph.Options{
		Concurrency: p.workers,
		Policy:      taskgraph.FailurePolicy(p.cfg.Scheduler.FailurePolicy),
		Observer:    taskgraph.MultiObserver(observers...),
	})

	id := uuid.NewString()
	ctx = taskgraph.WithScheduler(ctx, sched)
	ctx = transform.WithClaims(ctx, transform.NewOutputClaims())
	ctx = context.WithValue(ctx, runIDKey{}, id)
	p.out.Debug("%s run %s (%d workers, %s)", kind, id, p.workers, sched.Policy())
	return &run{id: id, kind: kind, ctx: ctx, sched: sched, summary: summary, started: time.Now()}
}

func (r *run) exec(task taskgraph.Task) error {
	g := taskgraph.New()
	if err := g.Add(task); err != nil {
		return err
	}
	_, err := r.sched.Run(r.ctx, g)
	return err
}

func (p *Pipeline) finish(r *run, err error) {
	d := time.Since(r.started)
	p.metrics.RunFinished(r.kind, d, err)
	if c := transform.ClaimsFrom(r.ctx); c != nil {
		p.out.Debug("%s run %s wrote %d file(s) in %s", r.kind, r.id, c.Len(), output.FormatDuration(d))
	}
}

func (p *Pipeline) newMachine() *Machine {
	return NewMachine(func(from, to Phase) {
		switch to {
		case PhaseDone, PhaseFailed:
		default:
			p.out.PhaseHeader(to.Title())
		}
		if p.onPhase != nil {
			p.onPhase(from, to)
		}
	})
}

// step enters phase and runs task in it.
func step(m *Machine, phase Phase, r *run, task taskgraph.Task) error {
	if err := m.Transition(phase); err != nil {
		return err
	}
	return tagPhase(r.exec(task), phase)
}

// tagPhase records the failing phase on the error when it carries none.
func tagPhase(err error, phase Phase) error {
	var se *serrors.SitepipeError
	if errors.As(err, &se) && se.Phase == "" {
		se.Phase = string(phase)
	}
	return err
}

// settle moves m to done or failed.
func settle(m *Machine, err error) {
	if err != nil {
		_ = m.Transition(PhaseFailed)
		return
	}
	_ = m.Transition(PhaseDone)
}

// Clean removes the build tree.
func (p *Pipeline) Clean(ctx context.Context) (err error) {
	r := p.newRun(ctx, "clean")
	defer func() { p.finish(r, err) }()
	return r.exec(p.mustTask(TaskClean))
}

// RunTask runs one named task as its own run.
func (p *Pipeline) RunTask(ctx context.Context, name string) (err error) {
	t, ok := p.tasks[name]
	if !ok {
		return serrors.NotFound("task", name)
	}
	r := p.newRun(ctx, name)
	defer func() { p.finish(r, err) }()
	return r.exec(t)
}

// runTriggered executes a watch-triggered task with a fresh run.
func (p *Pipeline) runTriggered(ctx context.Context, task taskgraph.Task) (err error) {
	r := p.newRun(ctx, "watch")
	defer func() { p.finish(r, err) }()
	return r.exec(task)
}

// Dev cleans the build tree, builds the dev assets into the source tree and
// serves the source tree until ctx is canceled.
func (p *Pipeline) Dev(ctx context.Context) (err error) {
	m := p.newMachine()
	r := p.newRun(ctx, "dev")
	defer func() {
		p.finish(r, err)
		settle(m, err)
	}()

	if err := step(m, PhaseCleaning, r, p.mustTask(TaskClean)); err != nil {
		return err
	}
	if err := step(m, PhaseBuilding, r, p.DevAssets()); err != nil {
		return err
	}
	if err := m.Transition(PhaseServing); err != nil {
		return err
	}
	return tagPhase(p.serve(ctx, p.srcDir, p.DevBindings()), PhaseServing)
}

// BuildOptions controls the build command.
type BuildOptions struct {
	Serve bool // Serve and watch the build tree afterwards
}

// Build produces the production tree and optionally serves it.
func (p *Pipeline) Build(ctx context.Context, opts BuildOptions) (err error) {
	m := p.newMachine()
	r := p.newRun(ctx, "build")
	built := false
	defer func() {
		p.finish(r, err)
		settle(m, err)
		if err != nil && !built {
			r.summary.print(p.out, "Build Summary")
			p.out.FinalFailure("Build failed after %s", output.FormatDuration(time.Since(r.started)))
		}
	}()

	if err := step(m, PhaseCleaning, r, p.mustTask(TaskClean)); err != nil {
		return err
	}
	if err := step(m, PhaseBuilding, r, p.BuildAssets()); err != nil {
		return err
	}
	if err := step(m, PhaseCleanup, r, p.mustTask(TaskCleanJunk)); err != nil {
		return err
	}
	built = true
	r.summary.print(p.out, "Build Summary")
	p.out.FinalSuccess("Built %s in %s", p.buildDir, output.FormatDuration(time.Since(r.started)))
	if !opts.Serve {
		return nil
	}
	if err := m.Transition(PhaseServing); err != nil {
		return err
	}
	return tagPhase(p.serve(ctx, p.buildDir, p.ProdBindings()), PhaseServing)
}

// Serve serves and watches the existing build tree without building it.
func (p *Pipeline) Serve(ctx context.Context) (err error) {
	m := p.newMachine()
	defer func() { settle(m, err) }()
	if err := m.Transition(PhaseServing); err != nil {
		return err
	}
	return p.serve(ctx, p.buildDir, p.ProdBindings())
}

// Deploy uploads the existing build tree. It returns what was uploaded.
func (p *Pipeline) Deploy(ctx context.Context) (res *deploy.Result, err error) {
	m := p.newMachine()
	r := p.newRun(ctx, "deploy")
	defer func() {
		p.finish(r, err)
		settle(m, err)
		if err != nil {
			p.out.FinalFailure("Deploy failed")
		}
	}()

	d := p.deployer
	if d == nil {
		if d, err = deploy.New(p.cfg.Deploy, p.root, p.out); err != nil {
			return nil, err
		}
	}

	if err := m.Transition(PhasePackaging); err != nil {
		return nil, err
	}
	bundle, err := deploy.Package(r.ctx, p.buildDir, r.id)
	if err != nil {
		return nil, tagPhase(err, PhasePackaging)
	}
	p.out.Info("Packaged %d file(s) from %s", len(bundle.Entries), p.buildDir)

	if err := m.Transition(PhaseUploading); err != nil {
		return nil, err
	}
	res, err = d.Upload(r.ctx, bundle)
	if err != nil {
		return nil, tagPhase(err, PhaseUploading)
	}
	p.out.SummaryHeader("Deploy Summary")
	p.out.SummaryItem("Target", res.Target)
	p.out.SummaryItem("Files", strconv.Itoa(res.Files))
	p.out.SummaryItem("Bytes", strconv.FormatInt(res.Bytes, 10))
	p.out.FinalSuccess("Deployed %d file(s) to %s", res.Files, res.Target)
	return res, nil
}

// Describe lists named tasks with the compositions, sorted for display.
func (p *Pipeline) Describe() []string {
	graphs := p.Graphs()
	keys := make([]string, 0, len(graphs))
	for k := range graphs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s = %s", k, graphs[k]))
	}
	return lines
}
