package integration

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/AndreyAkinshin/sitepipe/internal/cli"
	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/project"
)

func TestCLI_ExitCodes(t *testing.T) {
	fixture := func(parts ...string) string {
		return filepath.Join(append([]string{fixturesDir()}, parts...)...)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"valid json config", []string{"config", "validate", "--config=" + fixture("site", "sitepipe.json")}, serrors.ExitSuccess},
		{"valid toml config", []string{"config", "validate", "--config=" + fixture("toml", "sitepipe.toml")}, serrors.ExitSuccess},
		{"malformed json", []string{"config", "validate", "--config=" + fixture("invalid", "bad-json", "sitepipe.json")}, serrors.ExitConfigError},
		{"unknown watch policy", []string{"config", "validate", "--config=" + fixture("invalid", "bad-policy", "sitepipe.yaml")}, serrors.ExitConfigError},
		{"quality out of range", []string{"config", "validate", "--config=" + fixture("invalid", "bad-quality", "sitepipe.toml")}, serrors.ExitConfigError},
		{"source equals build", []string{"config", "validate", "--config=" + fixture("invalid", "same-dirs", "sitepipe.json")}, serrors.ExitConfigError},
		{"missing config file", []string{"--config=" + fixture("nope.json"), "config", "validate"}, serrors.ExitConfigError},
		{"unknown task", []string{"--config=" + fixture("site", "sitepipe.json"), "run", "uglify"}, serrors.ExitConfigError},
		{"unknown command", []string{"watch"}, serrors.ExitConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cli.Run(append([]string{"-q"}, tt.args...)); got != tt.want {
				t.Errorf("Run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestCLI_DeployWithoutBuild(t *testing.T) {
	root := copyFixture(t, "site")
	got := cli.Run([]string{"-q", "--config=" + filepath.Join(root, "sitepipe.json"), "deploy"})
	if got != serrors.ExitRuntimeError {
		t.Errorf("deploy without build = %d, want %d", got, serrors.ExitRuntimeError)
	}
}

func TestCLI_BuildIsDeterministic(t *testing.T) {
	root := copyFixture(t, "site")
	// Without the Sass entry the build needs no external tools.
	if err := os.RemoveAll(filepath.Join(root, "src", "sass")); err != nil {
		t.Fatal(err)
	}
	args := []string{"-q", "--config=" + filepath.Join(root, "sitepipe.json"), "build", "--no-serve"}

	if got := cli.Run(args); got != serrors.ExitSuccess {
		t.Fatalf("first build = %d", got)
	}
	first := hashTree(t, filepath.Join(root, "build"))
	if got := cli.Run(args); got != serrors.ExitSuccess {
		t.Fatalf("second build = %d", got)
	}
	second := hashTree(t, filepath.Join(root, "build"))

	if len(first) == 0 {
		t.Fatal("build tree is empty")
	}
	for rel, sum := range first {
		if second[rel] != sum {
			t.Errorf("build/%s differs between runs", rel)
		}
	}
	if len(first) != len(second) {
		t.Errorf("build trees differ in size: %d vs %d files", len(first), len(second))
	}
}

func TestPipeline_ErrorKinds(t *testing.T) {
	root := copyFixture(t, "site")
	if err := os.RemoveAll(filepath.Join(root, "src", "sass")); err != nil {
		t.Fatal(err)
	}
	proj, err := project.LoadProjectFrom(root)
	if err != nil {
		t.Fatal(err)
	}
	p := newPipeline(t, proj, nil)
	ctx := context.Background()

	err = p.RunTask(ctx, "uglify")
	if serrors.KindOf(err) != serrors.KindNotFound {
		t.Errorf("RunTask(unknown) kind = %v, want NotFound (err = %v)", serrors.KindOf(err), err)
	}

	// A broken sprite icon is a transform failure that halts the build.
	broken := filepath.Join(root, "src", "img", "svg-sprite", "broken.svg")
	if err := os.WriteFile(broken, []byte("<svg"), 0644); err != nil {
		t.Fatal(err)
	}
	err = p.RunTask(ctx, "prodSprite")
	if serrors.KindOf(err) != serrors.KindTransform {
		t.Errorf("prodSprite kind = %v, want Transform (err = %v)", serrors.KindOf(err), err)
	}
	if serrors.GetExitCode(err) != serrors.ExitRuntimeError {
		t.Errorf("exit code = %d, want %d", serrors.GetExitCode(err), serrors.ExitRuntimeError)
	}
	var se *serrors.SitepipeError
	if !errors.As(err, &se) || se.Task == "" {
		t.Errorf("error does not name the failing task: %v", err)
	}
}

func hashTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	sums := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		sums[filepath.ToSlash(rel)] = fmt.Sprintf("%x", sha256.Sum256(data))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return sums
}
