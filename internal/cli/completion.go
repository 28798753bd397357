package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

// cmdCompletion generates shell completion scripts.
func cmdCompletion(args []string) int {
	w := output.New()
	shell := ""
	alias := ""

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-h" || arg == "--help":
			printCompletionUsage()
			return 0
		case strings.HasPrefix(arg, "--alias="):
			alias = strings.TrimPrefix(arg, "--alias=")
		case arg == "--alias":
			w.ErrorPrefix("completion: --alias requires a value (--alias=<name>)")
			return 2
		case strings.HasPrefix(arg, "-"):
			w.ErrorPrefix("completion: unknown flag: %s", arg)
			printCompletionUsage()
			return 2
		default:
			if shell != "" {
				w.ErrorPrefix("completion: unexpected argument: %s", arg)
				return 2
			}
			shell = arg
		}
	}

	if shell == "" {
		w.ErrorPrefix("completion: shell required (bash, zsh, fish)")
		printCompletionUsage()
		return 2
	}

	cmdName := "sitepipe"
	if alias != "" {
		cmdName = alias
	}

	script, ok := completionScript(shell, cmdName)
	if !ok {
		w.ErrorPrefix("completion: unsupported shell %q (use bash, zsh, or fish)", shell)
		return 2
	}
	fmt.Print(script)
	return 0
}

func completionScript(shell, cmdName string) (string, bool) {
	switch shell {
	case "bash":
		return generateBashCompletion(cmdName), true
	case "zsh":
		return generateZshCompletion(cmdName), true
	case "fish":
		return generateFishCompletion(cmdName), true
	}
	return "", false
}

// printCompletionUsage prints the help text for the completion command.
func printCompletionUsage() {
	w := output.New()

	w.HelpTitle("sitepipe completion - generate shell completion scripts")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe completion <shell> [--alias=<name>]")

	w.HelpSection("Arguments:")
	w.HelpFlag("<shell>", "Shell type: bash, zsh, or fish", 10)

	w.HelpSection("Options:")
	w.HelpFlag("--alias=<name>", "Generate completion for command alias", 14)
	w.HelpFlag("-h, --help", "Show this help", 14)

	w.HelpSection("Examples:")
	w.HelpExample("sitepipe completion bash", "Generate bash completion")
	w.HelpExample("sitepipe completion zsh", "Generate zsh completion")
	w.HelpExample("sitepipe completion fish", "Generate fish completion")

	w.HelpSection("Installation:")
	w.Println("  Bash:  eval \"$(sitepipe completion bash)\"")
	w.Println("  Zsh:   eval \"$(sitepipe completion zsh)\"")
	w.Println("  Fish:  sitepipe completion fish | source")
	w.Println("")
}

// commandDescriptions maps each built-in command to its completion text.
var commandDescriptions = map[string]string{
	"dev":        "Develop with live reload",
	"build":      "Produce the optimized site",
	"clean":      "Remove the build tree",
	"serve":      "Serve the build tree",
	"deploy":     "Publish the build tree",
	"run":        "Run a single named task",
	"init":       "Create a new project",
	"tasks":      "List tasks",
	"config":     "Configuration utilities",
	"completion": "Generate shell completion",
	"version":    "Show version information",
	"help":       "Show help",
}

// builtinCommands returns the CLI commands in sorted order.
func builtinCommands() []string {
	cmds := make([]string, 0, len(commandDescriptions))
	for cmd := range commandDescriptions {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	return cmds
}

// globalFlags returns the global CLI flags.
func globalFlags() []string {
	return []string{
		"--quiet",
		"--verbose",
		"--config",
		"--port",
		"--help",
		"--version",
	}
}

func generateBashCompletion(cmdName string) string {
	funcName := "_" + strings.ReplaceAll(cmdName, "-", "_") + "_completions"

	return fmt.Sprintf(`# sitepipe bash completion
# Add to ~/.bashrc: eval "$(sitepipe completion bash)"

%s() {
    local cur prev words cword
    _init_completion || return

    local commands="%s"
    local flags="%s"

    case "${prev}" in
        %s)
            COMPREPLY=($(compgen -W "${commands} ${flags}" -- "${cur}"))
            return
            ;;
        run)
            COMPREPLY=($(compgen -W "$(%s tasks --names 2>/dev/null)" -- "${cur}"))
            return
            ;;
        config)
            COMPREPLY=($(compgen -W "validate" -- "${cur}"))
            return
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "${cur}"))
            return
            ;;
        --config)
            _filedir '@(json|yaml|yml|toml)'
            return
            ;;
    esac

    if [[ "${cur}" == -* ]]; then
        COMPREPLY=($(compgen -W "${flags} --no-serve --names" -- "${cur}"))
        return
    fi

    COMPREPLY=($(compgen -W "${commands}" -- "${cur}"))
}

complete -F %s %s
`, funcName, strings.Join(builtinCommands(), " "), strings.Join(globalFlags(), " "), cmdName, cmdName, funcName, cmdName)
}

func generateZshCompletion(cmdName string) string {
	funcName := "_" + strings.ReplaceAll(cmdName, "-", "_")

	var commands strings.Builder
	for _, cmd := range builtinCommands() {
		fmt.Fprintf(&commands, "        '%s:%s'\n", cmd, commandDescriptions[cmd])
	}

	return fmt.Sprintf(`#compdef %s
# sitepipe zsh completion
# Add to ~/.zshrc: eval "$(sitepipe completion zsh)"

%s() {
    local -a commands flags tasks

    commands=(
%s    )

    flags=(
        '(-q --quiet)'{-q,--quiet}'[Minimal output]'
        '(-v --verbose)'{-v,--verbose}'[Maximum detail]'
        '--config=[Configuration file]:file:_files -g "*.(json|yaml|yml|toml)"'
        '--port=[Server port]:port:'
        '--help[Show help]'
        '--version[Show version]'
    )

    if (( CURRENT == 2 )); then
        _describe -t commands 'command' commands
        _arguments -s $flags[@]
        return
    fi

    case "${words[2]}" in
        run)
            tasks=(${(f)"$(%s tasks --names 2>/dev/null)"})
            _describe -t tasks 'task' tasks
            ;;
        config)
            _values 'subcommand' 'validate[Validate configuration]'
            ;;
        completion)
            _values 'shell' bash zsh fish
            ;;
        build)
            _arguments -s $flags[@] '--no-serve[Exit after building]'
            ;;
        *)
            _arguments -s $flags[@]
            ;;
    esac
}

compdef %s %s
`, cmdName, funcName, commands.String(), cmdName, funcName, cmdName)
}

func generateFishCompletion(cmdName string) string {
	var sb strings.Builder

	sb.WriteString(`# sitepipe fish completion
# Add to config: sitepipe completion fish | source

`)
	fmt.Fprintf(&sb, "complete -c %s -f\n\n", cmdName)

	for _, cmd := range builtinCommands() {
		fmt.Fprintf(&sb, "complete -c %s -n '__fish_use_subcommand' -a '%s' -d '%s'\n", cmdName, cmd, commandDescriptions[cmd])
	}

	sb.WriteString("\n# Global flags\n")
	fmt.Fprintf(&sb, "complete -c %s -s q -l quiet -d 'Minimal output'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -s v -l verbose -d 'Maximum detail'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -l config -r -F -d 'Configuration file'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -l port -x -d 'Server port'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -l help -d 'Show help'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -l version -d 'Show version'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -n '__fish_seen_subcommand_from build' -l no-serve -d 'Exit after building'\n", cmdName)

	sb.WriteString("\n# Subcommand arguments\n")
	fmt.Fprintf(&sb, "complete -c %s -n '__fish_seen_subcommand_from config' -a 'validate' -d 'Validate configuration'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -n '__fish_seen_subcommand_from completion' -a 'bash zsh fish'\n", cmdName)
	fmt.Fprintf(&sb, "complete -c %s -n '__fish_seen_subcommand_from run' -a '(%s tasks --names 2>/dev/null)' -d 'Task'\n", cmdName, cmdName)

	return sb.String()
}
