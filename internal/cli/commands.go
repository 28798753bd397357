package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/metrics"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
	"github.com/AndreyAkinshin/sitepipe/internal/pipeline"
	"github.com/AndreyAkinshin/sitepipe/internal/project"
)

// out is the shared output writer for CLI commands.
var out = output.New()

// Help text alignment widths for consistent formatting.
const (
	helpFlagWidthShort  = 10 // Width for short flags like "-h, --help"
	helpFlagWidthGlobal = 16 // Width for global flags like "--config=<path>"
)

// applyVerbosityToOutput configures the output writer based on verbosity settings.
func applyVerbosityToOutput(opts *GlobalOptions) {
	out.SetQuiet(opts.Quiet)
	out.SetVerbose(opts.Verbose)
}

// loadProject loads the project configuration, prints its warnings and
// applies flag overrides. On failure it returns nil and the exit code.
func loadProject(opts *GlobalOptions) (*project.Project, int) {
	var (
		proj *project.Project
		err  error
	)
	if opts.ConfigPath != "" {
		proj, err = project.LoadProjectWithConfig(opts.ConfigPath)
	} else {
		proj, err = project.LoadProject()
	}
	if err != nil {
		out.ErrorPrefix("%v", err)
		return nil, loadExitCode(err)
	}

	for _, w := range proj.Warnings {
		out.WarningSimple("%s", w)
	}
	if opts.PortSet {
		proj.Config.Server.Port = opts.Port
	}
	return proj, 0
}

// loadExitCode maps a project load failure to an exit code. Failures that
// carry no error kind are configuration errors.
func loadExitCode(err error) int {
	var se *errors.SitepipeError
	if stderrors.As(err, &se) {
		return se.ExitCode()
	}
	return errors.ExitConfigError
}

// newPipeline creates the pipeline for a loaded project with a fresh metrics
// collector.
func newPipeline(proj *project.Project) (*pipeline.Pipeline, error) {
	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Options{
		SourceDir: proj.SourceDir(),
		BuildDir:  proj.BuildDir(),
		Root:      proj.Root,
		Config:    proj.Config,
		Out:       out,
		Metrics:   collector,
	})
}

// withPipeline loads the project, builds its pipeline and calls fn with a
// context canceled on SIGINT or SIGTERM.
func withPipeline(opts *GlobalOptions, fn func(ctx context.Context, p *pipeline.Pipeline) error) int {
	proj, exitCode := loadProject(opts)
	if proj == nil {
		return exitCode
	}

	p, err := newPipeline(proj)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			out.Debug("closing sass compiler: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return reportError(fn(ctx, p))
}

// reportError prints err and maps it to an exit code.
func reportError(err error) int {
	if err == nil {
		return errors.ExitSuccess
	}
	if stderrors.Is(err, context.Canceled) {
		out.WarningSimple("interrupted")
		return errors.ExitRuntimeError
	}
	out.ErrorPrefix("%v", err)
	return errors.GetExitCode(err)
}

// rejectArgs fails on any argument a command does not take.
func rejectArgs(cmd string, args []string) int {
	if len(args) > 0 {
		out.ErrorPrefix("%s: unexpected argument %q", cmd, args[0])
		return errors.ExitConfigError
	}
	return 0
}

// cmdDev builds development assets into the source tree and serves it.
func cmdDev(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printDevUsage()
		return 0
	}
	if code := rejectArgs("dev", args); code != 0 {
		return code
	}
	return withPipeline(opts, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Dev(ctx)
	})
}

// cmdBuild produces the build tree and, unless --no-serve is given, serves it.
func cmdBuild(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printBuildUsage()
		return 0
	}

	buildOpts := pipeline.BuildOptions{Serve: true}
	for _, arg := range args {
		switch arg {
		case "--no-serve":
			buildOpts.Serve = false
		default:
			out.ErrorPrefix("build: unknown option %q", arg)
			return errors.ExitConfigError
		}
	}

	return withPipeline(opts, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Build(ctx, buildOpts)
	})
}

// cmdClean removes the build tree.
func cmdClean(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printSimpleUsage("clean", "remove the build tree",
			"Deletes the build directory and everything in it.")
		return 0
	}
	if code := rejectArgs("clean", args); code != 0 {
		return code
	}
	return withPipeline(opts, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Clean(ctx)
	})
}

// cmdServe serves the existing build tree without building it first.
func cmdServe(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printSimpleUsage("serve", "serve the build tree",
			"Serves the existing build directory with live reload and rebuilds",
			"changed assets into it. Nothing is built up front.")
		return 0
	}
	if code := rejectArgs("serve", args); code != 0 {
		return code
	}
	return withPipeline(opts, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Serve(ctx)
	})
}

// cmdDeploy uploads the build tree to the configured provider.
func cmdDeploy(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printDeployUsage()
		return 0
	}
	if code := rejectArgs("deploy", args); code != 0 {
		return code
	}
	return withPipeline(opts, func(ctx context.Context, p *pipeline.Pipeline) error {
		_, err := p.Deploy(ctx)
		return err
	})
}

// cmdRun runs one named task.
func cmdRun(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printRunUsage()
		return 0
	}
	if len(args) != 1 {
		out.ErrorPrefix("run: exactly one task name required")
		out.Println("usage: sitepipe run <task>")
		return errors.ExitConfigError
	}
	name := args[0]
	return withPipeline(opts, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.RunTask(ctx, name)
	})
}

// cmdTasks lists named tasks and the composed graphs.
func cmdTasks(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printTasksUsage()
		return 0
	}

	namesOnly := false
	for _, arg := range args {
		switch arg {
		case "--names":
			namesOnly = true
		default:
			out.ErrorPrefix("tasks: unknown option %q", arg)
			return errors.ExitConfigError
		}
	}

	proj, exitCode := loadProject(opts)
	if proj == nil {
		return exitCode
	}
	p, err := newPipeline(proj)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	defer p.Close()

	if namesOnly {
		for _, name := range p.TaskNames() {
			out.Println("%s", name)
		}
		return 0
	}

	rows := make([][]string, 0, len(p.TaskNames()))
	for _, name := range p.TaskNames() {
		rows = append(rows, []string{name, p.Summary(name)})
	}
	out.Table([]string{"TASK", "DESCRIPTION"}, rows)
	out.HelpSection("Compositions:")
	for _, line := range p.Describe() {
		out.Println("  %s", line)
	}
	out.Println("")
	return 0
}

// cmdConfig handles configuration utilities.
func cmdConfig(args []string, opts *GlobalOptions) int {
	if len(args) == 0 {
		out.ErrorPrefix("config: subcommand required (validate)")
		return errors.ExitConfigError
	}

	switch args[0] {
	case "validate":
		return cmdConfigValidate(opts)
	case "-h", "--help":
		printConfigUsage()
		return 0
	default:
		out.ErrorPrefix("config: unknown subcommand %q", args[0])
		return errors.ExitConfigError
	}
}

func cmdConfigValidate(opts *GlobalOptions) int {
	proj, exitCode := loadProject(opts)
	if proj == nil {
		return exitCode
	}

	// Task names and compositions are only checked once the pipeline exists.
	p, err := newPipeline(proj)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	defer p.Close()

	source := proj.ConfigPath()
	if source == "" {
		source = "(defaults)"
	}

	out.Success("Configuration is valid.")
	out.SummaryItem("Config", source)
	out.SummaryItem("Source", proj.SourceDir())
	out.SummaryItem("Build", proj.BuildDir())
	out.SummaryItem("Tasks", fmt.Sprintf("%d", len(p.TaskNames())))
	out.SummaryItem("Deploy", proj.Config.Deploy.Provider)
	if len(proj.Warnings) > 0 {
		out.SummaryItem("Warnings", fmt.Sprintf("%d", len(proj.Warnings)))
	}
	return 0
}

// printDevUsage prints the help text for the dev command.
func printDevUsage() {
	w := output.New()

	w.HelpTitle("sitepipe dev - develop with live reload")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe dev [options]")

	w.HelpSection("Description:")
	w.Println("  Cleans the build tree, compiles styles, scripts and the sprite into")
	w.Println("  the source tree, then serves the source tree. Style changes are")
	w.Println("  injected into open pages; other changes reload them.")

	w.HelpSection("Options:")
	w.HelpFlag("--port=<n>", "Server port (default 3000)", helpFlagWidthGlobal)
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthGlobal)

	w.HelpSection("Examples:")
	w.HelpExample("sitepipe dev", "Serve on http://localhost:3000")
	w.HelpExample("sitepipe dev --port=8080", "Serve on port 8080")
	w.Println("")
}

// printBuildUsage prints the help text for the build command.
func printBuildUsage() {
	w := output.New()

	w.HelpTitle("sitepipe build - produce the optimized site")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe build [options]")

	w.HelpSection("Description:")
	w.Println("  Cleans the build tree, runs every production task in parallel,")
	w.Println("  removes junk files, then serves the build tree with live reload.")

	w.HelpSection("Options:")
	w.HelpFlag("--no-serve", "Exit after building", helpFlagWidthGlobal)
	w.HelpFlag("--port=<n>", "Server port (default 3000)", helpFlagWidthGlobal)
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthGlobal)

	w.HelpSection("Examples:")
	w.HelpExample("sitepipe build", "Build and serve")
	w.HelpExample("sitepipe build --no-serve", "Build only")
	w.Println("")
}

// printDeployUsage prints the help text for the deploy command.
func printDeployUsage() {
	w := output.New()

	w.HelpTitle("sitepipe deploy - publish the build tree")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe deploy")

	w.HelpSection("Description:")
	w.Println("  Reads the whole build tree, then uploads it to the provider named")
	w.Println("  by deploy.provider: a force-pushed git branch (github-pages) or an")
	w.Println("  S3-compatible bucket (s3). Run 'sitepipe build' first.")

	w.HelpSection("Options:")
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthShort)

	w.HelpSection("Examples:")
	w.HelpExample("sitepipe build --no-serve && sitepipe deploy", "Build and publish")
	w.Println("")
}

// printRunUsage prints the help text for the run command.
func printRunUsage() {
	w := output.New()

	w.HelpTitle("sitepipe run - run a single task")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe run <task>")

	w.HelpSection("Arguments:")
	w.HelpFlag("<task>", "Task name, see 'sitepipe tasks'", helpFlagWidthShort)

	w.HelpSection("Examples:")
	w.HelpExample("sitepipe run devStyle", "Compile development CSS")
	w.HelpExample("sitepipe run imagesWebp", "Convert images to WebP")
	w.Println("")
}

// printTasksUsage prints the help text for the tasks command.
func printTasksUsage() {
	w := output.New()

	w.HelpTitle("sitepipe tasks - list tasks")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe tasks [options]")

	w.HelpSection("Options:")
	w.HelpFlag("--names", "Print task names only, one per line", helpFlagWidthShort)
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthShort)
	w.Println("")
}

// printConfigUsage prints the help text for the config command.
func printConfigUsage() {
	w := output.New()

	w.HelpTitle("sitepipe config - configuration utilities")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe config <subcommand>")

	w.HelpSection("Subcommands:")
	w.HelpCommand("validate", "Validate the project configuration", helpFlagWidthShort)

	w.HelpSection("Options:")
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthShort)

	w.HelpSection("Examples:")
	w.HelpExample("sitepipe config validate", "Validate project configuration")
	w.HelpExample("sitepipe --config=site.yaml config validate", "Validate a specific file")
	w.Println("")
}

// printSimpleUsage prints help for commands without options.
func printSimpleUsage(cmd, summary string, description ...string) {
	w := output.New()

	w.HelpTitle(fmt.Sprintf("sitepipe %s - %s", cmd, summary))

	w.HelpSection("Usage:")
	w.HelpUsage(fmt.Sprintf("sitepipe %s", cmd))

	w.HelpSection("Description:")
	for _, line := range description {
		w.Println("  %s", line)
	}

	w.HelpSection("Options:")
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthShort)
	w.Println("")
}
