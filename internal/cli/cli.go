// Package cli provides command-line interface functionality for sitepipe.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	"github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

// Version is set at build time.
var Version = "dev"

// wantsHelp returns true if args contain -h or --help before any -- separator.
func wantsHelp(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			return true
		}
		if arg == "--" {
			return false
		}
	}
	return false
}

// Run executes the CLI with the given arguments and returns an exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 0
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return 0
	case "--version", "version":
		fmt.Printf("sitepipe %s\n", Version)
		return 0
	}

	opts, remaining, err := parseGlobalFlags(args)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}

	if len(remaining) == 0 {
		printUsage()
		return 0
	}
	cmd := remaining[0]
	cmdArgs := remaining[1:]

	switch cmd {
	// Pipeline commands
	case "dev":
		return cmdDev(cmdArgs, opts)
	case "build":
		return cmdBuild(cmdArgs, opts)
	case "clean":
		return cmdClean(cmdArgs, opts)
	case "serve":
		return cmdServe(cmdArgs, opts)
	case "deploy":
		return cmdDeploy(cmdArgs, opts)
	case "run":
		return cmdRun(cmdArgs, opts)

	// Utility commands
	case "init":
		return cmdInit(cmdArgs)
	case "tasks":
		return cmdTasks(cmdArgs, opts)
	case "config":
		return cmdConfig(cmdArgs, opts)
	case "completion":
		return cmdCompletion(cmdArgs)
	case "help":
		printUsage()
		return 0
	case "version":
		fmt.Printf("sitepipe %s\n", Version)
		return 0

	default:
		out.ErrorPrefix("unknown command %q", cmd)
		out.Hint("run 'sitepipe help' for a list of commands, or 'sitepipe run %s' for a named task", cmd)
		return errors.ExitConfigError
	}
}

// GlobalOptions holds parsed global flags.
type GlobalOptions struct {
	Quiet      bool
	Verbose    bool
	ConfigPath string // Explicit configuration file; empty means discover
	Port       int    // Server port override, valid when PortSet
	PortSet    bool
}

// parseGlobalFlags manually parses global flags from arguments.
//
// Flags can appear anywhere in the argument list, not just before the
// command, and everything after -- is passed through untouched.
func parseGlobalFlags(args []string) (*GlobalOptions, []string, error) {
	opts := &GlobalOptions{}
	var remaining []string

	i := 0
	for i < len(args) {
		arg := args[i]

		switch {
		case arg == "-q" || arg == "--quiet":
			opts.Quiet = true
			i++
		case arg == "-v" || arg == "--verbose":
			opts.Verbose = true
			i++
		case arg == "--config":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--config requires a value")
			}
			opts.ConfigPath = args[i+1]
			i += 2
		case strings.HasPrefix(arg, "--config="):
			opts.ConfigPath = strings.TrimPrefix(arg, "--config=")
			i++
		case arg == "--port":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--port requires a value")
			}
			if err := opts.setPort(args[i+1]); err != nil {
				return nil, nil, err
			}
			i += 2
		case strings.HasPrefix(arg, "--port="):
			if err := opts.setPort(strings.TrimPrefix(arg, "--port=")); err != nil {
				return nil, nil, err
			}
			i++
		case arg == "--":
			remaining = append(remaining, args[i:]...)
			i = len(args)
		default:
			remaining = append(remaining, arg)
			i++
		}
	}

	if err := validateGlobalOptions(opts); err != nil {
		return nil, nil, err
	}

	applyVerbosityToOutput(opts)

	return opts, remaining, nil
}

func (o *GlobalOptions) setPort(v string) error {
	port, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid --port value %q\n  example: sitepipe dev --port=8080", v)
	}
	o.Port = port
	o.PortSet = true
	return nil
}

// validateGlobalOptions checks that global options are valid.
func validateGlobalOptions(opts *GlobalOptions) error {
	if opts.Quiet && opts.Verbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}
	if opts.PortSet && (opts.Port < 0 || opts.Port > 65535) {
		return fmt.Errorf("--port must be between 0 and 65535, got %d", opts.Port)
	}
	if opts.ConfigPath == "" {
		return nil
	}
	if _, err := config.DetectFormat(opts.ConfigPath); err != nil {
		return fmt.Errorf("--config: %v", err)
	}
	return nil
}

func printUsage() {
	w := output.New()

	w.HelpTitle("sitepipe - static site asset pipeline")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe <command> [options]")

	w.HelpSection("Pipeline Commands:")
	w.HelpCommand("dev", "Build assets into the source tree, serve it and live-reload", 12)
	w.HelpCommand("build", "Produce the optimized build tree, then serve it", 12)
	w.HelpCommand("clean", "Remove the build tree", 12)
	w.HelpCommand("serve", "Serve and watch the existing build tree", 12)
	w.HelpCommand("deploy", "Publish the build tree", 12)
	w.HelpCommand("run <task>", "Run a single named task", 12)

	w.HelpSection("Utility Commands:")
	w.HelpCommand("init", "Create sitepipe.json and the source layout", 16)
	w.HelpCommand("tasks", "List named tasks and compositions", 16)
	w.HelpCommand("config validate", "Validate project configuration", 16)
	w.HelpCommand("completion", "Generate shell completion (bash, zsh, fish)", 16)
	w.HelpCommand("version", "Show version information", 16)

	printGlobalFlags(w)

	w.HelpSection("Examples:")
	w.HelpExample("sitepipe dev", "Develop with live reload on port 3000")
	w.HelpExample("sitepipe build --no-serve", "Build once for CI")
	w.HelpExample("sitepipe build --port=8080", "Build, then serve on port 8080")
	w.HelpExample("sitepipe run prodStyle", "Compile production CSS only")
	w.HelpExample("sitepipe deploy", "Publish build/ to the configured host")
	w.Println("")
}

func printGlobalFlags(w *output.Writer) {
	w.HelpSection("Global Flags:")
	w.HelpFlag("-q, --quiet", "Minimal output (errors only)", helpFlagWidthGlobal)
	w.HelpFlag("-v, --verbose", "Maximum detail", helpFlagWidthGlobal)
	w.HelpFlag("--config=<path>", "Use this configuration file", helpFlagWidthGlobal)
	w.HelpFlag("--port=<n>", "Server port for dev, build and serve", helpFlagWidthGlobal)
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthGlobal)
	w.HelpFlag("--version", "Show version", helpFlagWidthGlobal)

	w.HelpSection("Environment:")
	w.HelpEnvVar(config.EnvPort, "Server port", 24)
	w.HelpEnvVar(config.EnvParallel, "Maximum concurrent tasks", 24)
	w.HelpEnvVar(config.EnvDeployRemote, "Git remote for github-pages deploys", 24)
	w.HelpEnvVar(config.EnvS3Bucket, "Bucket for s3 deploys", 24)
	w.HelpEnvVar(config.EnvS3AccessKey, "S3 access key", 24)
	w.HelpEnvVar(config.EnvS3SecretKey, "S3 secret key", 24)
}
