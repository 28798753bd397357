package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

// GitPages force-pushes the bundle as the only commit of a branch, the way
// GitHub Pages expects a gh-pages branch.
type GitPages struct {
	Dir     string // Repository whose origin is the default remote
	Remote  string // URL or path; empty means Dir's origin
	Branch  string
	Message string
	Git     string // Binary, defaults to "git"
	Out     *output.Writer
}

// Name implements Deployer.
func (g *GitPages) Name() string { return config.ProviderGitHubPages }

func (g *GitPages) binary() string {
	if g.Git != "" {
		return g.Git
	}
	return "git"
}

func (g *GitPages) out() *output.Writer {
	if g.Out == nil {
		return output.Discard()
	}
	return g.Out
}

// Upload implements Deployer.
func (g *GitPages) Upload(ctx context.Context, b *Bundle) (*Result, error) {
	if _, err := exec.LookPath(g.binary()); err != nil {
		return nil, serrors.Environmentf("git is required for %s deploys: %v", g.Name(), err)
	}

	remote, err := g.remote(ctx)
	if err != nil {
		return nil, err
	}
	branch := g.Branch
	if branch == "" {
		branch = config.DefaultDeployBranch
	}
	message := g.Message
	if message == "" {
		message = config.DefaultDeployMessage
	}

	work, err := os.MkdirTemp("", "sitepipe-deploy-*")
	if err != nil {
		return nil, serrors.Filesystem(os.TempDir(), err)
	}
	defer os.RemoveAll(work)

	for _, e := range b.Entries {
		if err := copyFile(b.Path(e), filepath.Join(work, filepath.FromSlash(e.Rel))); err != nil {
			return nil, serrors.Filesystem(b.Path(e), err)
		}
	}

	steps := [][]string{
		{"init", "-q"},
		{"symbolic-ref", "HEAD", "refs/heads/" + branch},
		{"add", "-A"},
		append(g.identity(ctx, work), "commit", "-q", "--allow-empty", "-m", ExpandMessage(message, b.RunID)),
		{"push", "-q", "--force", remote, "HEAD:refs/heads/" + branch},
	}
	for _, args := range steps {
		if _, err := g.git(ctx, work, args...); err != nil {
			return nil, err
		}
	}

	g.out().Debug("deploy: pushed %d file(s) to %s (%s)", len(b.Entries), remote, branch)
	return &Result{Target: remote + "#" + branch, Files: len(b.Entries), Bytes: b.Size()}, nil
}

// remote resolves the push target, falling back to the origin of Dir. The
// push runs from a temporary work tree, so relative local paths are made
// absolute against Dir.
func (g *GitPages) remote(ctx context.Context) (string, error) {
	dir := g.Dir
	if dir == "" {
		dir = "."
	}
	r := strings.TrimSpace(g.Remote)
	if r == "" {
		url, err := g.git(ctx, dir, "remote", "get-url", "origin")
		if err != nil {
			return "", serrors.Configf("no deploy remote: set deploy.remote or %s, or add an origin remote (%v)", config.EnvDeployRemote, err)
		}
		r = url
	}
	if !isRelativePath(r) {
		return r, nil
	}
	abs, err := filepath.Abs(filepath.Join(dir, filepath.FromSlash(r)))
	if err != nil {
		return "", serrors.Filesystem(r, err)
	}
	return abs, nil
}

// isRelativePath reports whether a git remote is a relative local path
// rather than a URL, an scp-like "host:path" or an absolute path.
func isRelativePath(remote string) bool {
	if filepath.IsAbs(remote) || strings.Contains(remote, "://") {
		return false
	}
	if colon := strings.Index(remote, ":"); colon >= 0 {
		slash := strings.Index(remote, "/")
		if slash < 0 || colon < slash {
			return false
		}
	}
	return true
}

// identity supplies a committer when the user has none configured.
func (g *GitPages) identity(ctx context.Context, dir string) []string {
	if email, err := g.git(ctx, dir, "config", "user.email"); err == nil && email != "" {
		return nil
	}
	return []string{"-c", "user.name=sitepipe", "-c", "user.email=sitepipe@localhost"}
}

func (g *GitPages) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary(), args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", serrors.Transform("deploy", "git "+args[0], errors.New(msg))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
