package cli

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		want          GlobalOptions
		wantRemaining []string
		wantErr       string
	}{
		{
			name:          "no flags",
			args:          []string{"build"},
			wantRemaining: []string{"build"},
		},
		{
			name:          "quiet short",
			args:          []string{"-q", "build"},
			want:          GlobalOptions{Quiet: true},
			wantRemaining: []string{"build"},
		},
		{
			name:          "verbose after command",
			args:          []string{"dev", "--verbose"},
			want:          GlobalOptions{Verbose: true},
			wantRemaining: []string{"dev"},
		},
		{
			name:          "config with equals",
			args:          []string{"--config=site.yaml", "config", "validate"},
			want:          GlobalOptions{ConfigPath: "site.yaml"},
			wantRemaining: []string{"config", "validate"},
		},
		{
			name:          "config with space",
			args:          []string{"build", "--config", "conf/site.toml"},
			want:          GlobalOptions{ConfigPath: "conf/site.toml"},
			wantRemaining: []string{"build"},
		},
		{
			name:          "port with equals",
			args:          []string{"dev", "--port=8080"},
			want:          GlobalOptions{Port: 8080, PortSet: true},
			wantRemaining: []string{"dev"},
		},
		{
			name:          "port zero",
			args:          []string{"--port", "0", "serve"},
			want:          GlobalOptions{Port: 0, PortSet: true},
			wantRemaining: []string{"serve"},
		},
		{
			name:          "command options pass through",
			args:          []string{"build", "--no-serve"},
			wantRemaining: []string{"build", "--no-serve"},
		},
		{
			name:          "-- passthrough",
			args:          []string{"run", "--", "--port=1"},
			wantRemaining: []string{"run", "--", "--port=1"},
		},
		{
			name:    "quiet and verbose",
			args:    []string{"-q", "-v", "build"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "port not a number",
			args:    []string{"--port=abc", "dev"},
			wantErr: "invalid --port",
		},
		{
			name:    "port out of range",
			args:    []string{"--port=70000", "dev"},
			wantErr: "between 0 and 65535",
		},
		{
			name:    "port without value",
			args:    []string{"dev", "--port"},
			wantErr: "--port requires a value",
		},
		{
			name:    "config without value",
			args:    []string{"build", "--config"},
			wantErr: "--config requires a value",
		},
		{
			name:    "config with unknown extension",
			args:    []string{"--config=site.ini", "build"},
			wantErr: "unsupported config file extension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, remaining, err := parseGlobalFlags(tt.args)
			t.Cleanup(func() { applyVerbosityToOutput(&GlobalOptions{}) })

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseGlobalFlags(%v) error = %v, want containing %q", tt.args, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseGlobalFlags(%v) error = %v", tt.args, err)
			}
			if *opts != tt.want {
				t.Errorf("options = %+v, want %+v", *opts, tt.want)
			}
			if !reflect.DeepEqual(remaining, tt.wantRemaining) {
				t.Errorf("remaining = %v, want %v", remaining, tt.wantRemaining)
			}
		})
	}
}

func TestWantsHelp(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{nil, false},
		{[]string{"-h"}, true},
		{[]string{"--no-serve", "--help"}, true},
		{[]string{"--", "-h"}, false},
	}
	for _, tt := range tests {
		if got := wantsHelp(tt.args); got != tt.want {
			t.Errorf("wantsHelp(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"empty", []string{}, 0},
		{"help", []string{"help"}, 0},
		{"-h", []string{"-h"}, 0},
		{"--help", []string{"--help"}, 0},
		{"version", []string{"version"}, 0},
		{"--version", []string{"--version"}, 0},
		{"flags only", []string{"-q"}, 0},
		{"unknown command", []string{"publish"}, serrors.ExitConfigError},
		{"bad flag", []string{"--port=x", "dev"}, serrors.ExitConfigError},
		{"config without subcommand", []string{"config"}, serrors.ExitConfigError},
		{"config unknown subcommand", []string{"config", "lint"}, serrors.ExitConfigError},
		{"config help", []string{"config", "--help"}, 0},
		{"dev help", []string{"dev", "-h"}, 0},
		{"build help", []string{"build", "--help"}, 0},
		{"clean help", []string{"clean", "-h"}, 0},
		{"serve help", []string{"serve", "-h"}, 0},
		{"deploy help", []string{"deploy", "-h"}, 0},
		{"run help", []string{"run", "-h"}, 0},
		{"tasks help", []string{"tasks", "-h"}, 0},
		{"init help", []string{"init", "-h"}, 0},
		{"build unknown option", []string{"build", "--minify"}, serrors.ExitConfigError},
		{"dev extra argument", []string{"dev", "now"}, serrors.ExitConfigError},
		{"run without task", []string{"run"}, serrors.ExitConfigError},
		{"run two tasks", []string{"run", "a", "b"}, serrors.ExitConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { applyVerbosityToOutput(&GlobalOptions{}) })
			if got := Run(tt.args); got != tt.want {
				t.Errorf("Run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestLoadExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", fmt.Errorf("failed to load configuration: boom"), serrors.ExitConfigError},
		{"config kind", serrors.Configf("bad"), serrors.ExitConfigError},
		{"environment kind", serrors.Environmentf("no sass"), serrors.ExitEnvironmentError},
		{"wrapped filesystem", fmt.Errorf("load: %w", serrors.Filesystem("/x", os.ErrPermission)), serrors.ExitRuntimeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loadExitCode(tt.err); got != tt.want {
				t.Errorf("loadExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

// createTestProject writes a small site that builds without external tools:
// no Sass entry and no raster images.
func createTestProject(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"sitepipe.json":               `{"server": {"host": "127.0.0.1"}, "watch": {"debounce_ms": 10}}`,
		"src/index.html":              "<!DOCTYPE html>\n<html>\n  <body>\n    <!-- note -->\n    <p>  Hello  </p>\n  </body>\n</html>\n",
		"src/_TEMPLATE.html":          "<p>template</p>\n",
		"src/js/a.js":                 "var a = 1;\n",
		"src/js/b.js":                 "console.log(a);\n",
		"src/img/svg-sprite/star.svg": `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><path d="M0 0h10v10z"/></svg>`,
		"src/img/logo.svg":            `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10">  <rect width="10" height="10"/>  </svg>`,
		"src/fonts/a.woff":            "wOFF",
		"src/favicons/favicon.ico":    "ico",
		"src/notes.txt":               "junk",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// withWorkingDir changes to dir, runs fn, then restores original directory
func withWorkingDir(t *testing.T, dir string, fn func()) {
	t.Helper()
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Chdir(originalWd)
	})
	fn()
}

func TestCmdConfigValidate(t *testing.T) {
	t.Run("valid project", func(t *testing.T) {
		root := createTestProject(t)
		withWorkingDir(t, root, func() {
			if got := cmdConfigValidate(&GlobalOptions{}); got != 0 {
				t.Errorf("cmdConfigValidate() = %d, want 0", got)
			}
		})
	})

	t.Run("defaults without config file", func(t *testing.T) {
		withWorkingDir(t, t.TempDir(), func() {
			if got := cmdConfigValidate(&GlobalOptions{}); got != 0 {
				t.Errorf("cmdConfigValidate() = %d, want 0", got)
			}
		})
	})

	t.Run("malformed config", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, "sitepipe.json"), []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		withWorkingDir(t, root, func() {
			if got := cmdConfigValidate(&GlobalOptions{}); got != serrors.ExitConfigError {
				t.Errorf("cmdConfigValidate() = %d, want %d", got, serrors.ExitConfigError)
			}
		})
	})

	t.Run("invalid policy", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "site.yaml")
		if err := os.WriteFile(path, []byte("watch:\n  policy: sometimes\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if got := cmdConfigValidate(&GlobalOptions{ConfigPath: path}); got != serrors.ExitConfigError {
			t.Errorf("cmdConfigValidate() = %d, want %d", got, serrors.ExitConfigError)
		}
	})

	t.Run("missing explicit config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.json")
		if got := cmdConfigValidate(&GlobalOptions{ConfigPath: path}); got != serrors.ExitConfigError {
			t.Errorf("cmdConfigValidate() = %d, want %d", got, serrors.ExitConfigError)
		}
	})
}

func TestCmdTasks(t *testing.T) {
	root := createTestProject(t)
	withWorkingDir(t, root, func() {
		for _, args := range [][]string{nil, {"--names"}} {
			if got := cmdTasks(args, &GlobalOptions{}); got != 0 {
				t.Errorf("cmdTasks(%v) = %d, want 0", args, got)
			}
		}
		if got := cmdTasks([]string{"--all"}, &GlobalOptions{}); got != serrors.ExitConfigError {
			t.Errorf("cmdTasks(--all) = %d, want %d", got, serrors.ExitConfigError)
		}
	})
}

func TestCmdTasks_Table(t *testing.T) {
	root := createTestProject(t)
	var buf bytes.Buffer
	saved := out
	out = output.NewWithWriters(&buf, io.Discard, false)
	t.Cleanup(func() { out = saved })

	withWorkingDir(t, root, func() {
		if got := cmdTasks(nil, &GlobalOptions{}); got != 0 {
			t.Fatalf("cmdTasks() = %d, want 0", got)
		}
	})

	got := buf.String()
	for _, want := range []string{"TASK", "DESCRIPTION", "remove the build tree", "minify HTML pages", "Compositions:"} {
		if !strings.Contains(got, want) {
			t.Errorf("tasks output missing %q:\n%s", want, got)
		}
	}
}

func TestCmdBuild_NoServe(t *testing.T) {
	root := createTestProject(t)
	withWorkingDir(t, root, func() {
		if got := cmdBuild([]string{"--no-serve"}, &GlobalOptions{}); got != 0 {
			t.Fatalf("cmdBuild(--no-serve) = %d, want 0", got)
		}
	})

	for _, rel := range []string{"index.html", "js/main.js", "img/sprite.svg", "img/logo.svg", "fonts/a.woff", "favicon.ico"} {
		if _, err := os.Stat(filepath.Join(root, "build", filepath.FromSlash(rel))); err != nil {
			t.Errorf("build/%s missing: %v", rel, err)
		}
	}
	for _, rel := range []string{"_TEMPLATE.html", "notes.txt", "img/svg-sprite"} {
		if _, err := os.Stat(filepath.Join(root, "build", filepath.FromSlash(rel))); !os.IsNotExist(err) {
			t.Errorf("build/%s should have been removed", rel)
		}
	}

	html, err := os.ReadFile(filepath.Join(root, "build", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(html), "<!-- note -->") {
		t.Errorf("build/index.html still has comments: %s", html)
	}
}

func TestCmdClean(t *testing.T) {
	root := createTestProject(t)
	stale := filepath.Join(root, "build", "old.css")
	if err := os.MkdirAll(filepath.Dir(stale), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("a{}"), 0644); err != nil {
		t.Fatal(err)
	}

	withWorkingDir(t, root, func() {
		if got := cmdClean(nil, &GlobalOptions{}); got != 0 {
			t.Fatalf("cmdClean() = %d, want 0", got)
		}
	})
	if _, err := os.Stat(filepath.Join(root, "build")); !os.IsNotExist(err) {
		t.Errorf("build directory still exists: %v", err)
	}
}

func TestCmdRun(t *testing.T) {
	root := createTestProject(t)
	withWorkingDir(t, root, func() {
		if got := cmdRun([]string{"devScript"}, &GlobalOptions{}); got != 0 {
			t.Fatalf("cmdRun(devScript) = %d, want 0", got)
		}
		if got := cmdRun([]string{"minifyEverything"}, &GlobalOptions{}); got != serrors.ExitConfigError {
			t.Errorf("cmdRun(unknown) = %d, want %d", got, serrors.ExitConfigError)
		}
	})

	data, err := os.ReadFile(filepath.Join(root, "src", "js", "main.js"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "var a = 1;\nconsole.log(a);\n") {
		t.Errorf("src/js/main.js = %q, want a.js then b.js", data)
	}
}

func TestCmdDeploy_WithoutBuild(t *testing.T) {
	root := createTestProject(t)
	withWorkingDir(t, root, func() {
		if got := cmdDeploy(nil, &GlobalOptions{}); got != serrors.ExitRuntimeError {
			t.Errorf("cmdDeploy() = %d, want %d", got, serrors.ExitRuntimeError)
		}
	})
}

func TestCmdServe_PortInUse(t *testing.T) {
	root := createTestProject(t)
	if err := os.MkdirAll(filepath.Join(root, "build"), 0755); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	withWorkingDir(t, root, func() {
		got := cmdServe(nil, &GlobalOptions{Port: port, PortSet: true})
		if got != serrors.ExitEnvironmentError {
			t.Errorf("cmdServe() = %d, want %d", got, serrors.ExitEnvironmentError)
		}
	})
}

func TestCmdInit(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	withWorkingDir(t, root, func() {
		if got := cmdInit(nil); got != 0 {
			t.Fatalf("cmdInit() = %d, want 0", got)
		}
		for _, rel := range []string{"sitepipe.json", "src/index.html", "src/sass/style.scss", "src/js/app.js", "src/img/svg-sprite", "src/favicons", ".gitignore"} {
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
				t.Errorf("%s was not created: %v", rel, err)
			}
		}
		if got := cmdConfigValidate(&GlobalOptions{}); got != 0 {
			t.Errorf("cmdConfigValidate() after init = %d, want 0", got)
		}
		if got := cmdInit([]string{"--force"}); got != serrors.ExitConfigError {
			t.Errorf("cmdInit(--force) = %d, want %d", got, serrors.ExitConfigError)
		}
	})
}

func TestInitProject_Idempotent(t *testing.T) {
	root := t.TempDir()

	created, isNew, err := initProject(root)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew || len(created) == 0 {
		t.Fatalf("first initProject() = %v, %v; want a new project", created, isNew)
	}

	custom := filepath.Join(root, "src", "index.html")
	if err := os.WriteFile(custom, []byte("<p>mine</p>"), 0644); err != nil {
		t.Fatal(err)
	}

	created, isNew, err = initProject(root)
	if err != nil {
		t.Fatal(err)
	}
	if isNew || len(created) != 0 {
		t.Errorf("second initProject() = %v, %v; want nothing created", created, isNew)
	}
	data, err := os.ReadFile(custom)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<p>mine</p>" {
		t.Errorf("index.html overwritten: %q", data)
	}
}

func TestInitProject_ExistingConfigKeepsSources(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "sitepipe.yaml"), []byte("paths:\n  source: site\n  build: public\n"), 0644); err != nil {
		t.Fatal(err)
	}

	created, isNew, err := initProject(root)
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Error("initProject() reported a new project despite sitepipe.yaml")
	}
	if _, err := os.Stat(filepath.Join(root, "sitepipe.json")); !os.IsNotExist(err) {
		t.Error("sitepipe.json written next to an existing sitepipe.yaml")
	}
	if _, err := os.Stat(filepath.Join(root, "site", "fonts")); err != nil {
		t.Errorf("site/fonts not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "site", "index.html")); !os.IsNotExist(err) {
		t.Error("starter files written into an existing project")
	}

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"public/", "site/css/", "site/js/main.js", "site/img/sprite.svg"} {
		if !strings.Contains(string(data), want) {
			t.Errorf(".gitignore missing %q:\n%s", want, data)
		}
	}
	if len(created) == 0 {
		t.Error("initProject() created nothing")
	}
}

func TestUpdateGitignore(t *testing.T) {
	entries := []string{"# sitepipe", "build/"}
	tests := []struct {
		name     string
		existing *string
		want     string
		changed  bool
	}{
		{"new file", nil, "# sitepipe\nbuild/\n", true},
		{"empty file", strPtr(""), "# sitepipe\nbuild/\n", true},
		{"existing entries", strPtr("node_modules/\n"), "node_modules/\n\n# sitepipe\nbuild/\n", true},
		{"no trailing newline", strPtr("node_modules/"), "node_modules/\n\n# sitepipe\nbuild/\n", true},
		{"already present", strPtr("# sitepipe\ndist/\n"), "# sitepipe\ndist/\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, ".gitignore")
			if tt.existing != nil {
				if err := os.WriteFile(path, []byte(*tt.existing), 0644); err != nil {
					t.Fatal(err)
				}
			}

			if got := updateGitignore(root, entries); got != tt.changed {
				t.Errorf("updateGitignore() = %v, want %v", got, tt.changed)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf(".gitignore = %q, want %q", data, tt.want)
			}
		})
	}
}

func strPtr(s string) *string { return &s }
