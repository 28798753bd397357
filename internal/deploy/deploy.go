// Package deploy publishes a finished build tree to a static host.
//
// A deploy has two steps. Package lists the build directory into a Bundle
// of paths and sizes, and a Deployer uploads that bundle, reading each file
// as it goes. A missing build directory fails in Package before anything
// remote is touched; a file that vanishes after packaging fails the upload.
package deploy

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

// RunPlaceholder in a commit message is replaced by the run ID.
const RunPlaceholder = "{run}"

// Entry is one file of a bundle.
type Entry struct {
	Rel  string // Slash-separated path relative to the bundle root
	Size int64
}

// Bundle is a snapshot of a build directory ready for upload.
type Bundle struct {
	Dir     string
	RunID   string
	Entries []Entry
}

// Size returns the total byte size of the bundle.
func (b *Bundle) Size() int64 {
	var n int64
	for _, e := range b.Entries {
		n += e.Size
	}
	return n
}

// Path returns the absolute path of an entry.
func (b *Bundle) Path(e Entry) string {
	return filepath.Join(b.Dir, filepath.FromSlash(e.Rel))
}

// Result describes a finished upload.
type Result struct {
	Target string // Human-readable destination, e.g. "s3://bucket/prefix"
	Files  int
	Bytes  int64
}

// Deployer uploads a bundle to a static host.
type Deployer interface {
	Name() string
	Upload(ctx context.Context, b *Bundle) (*Result, error)
}

// Package lists every regular file under dir. The directory must exist;
// deploying never builds.
func Package(ctx context.Context, dir, runID string) (*Bundle, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, serrors.Filesystem(dir, fmt.Errorf("build directory is missing, run the build first: %w", err))
	}
	if !info.IsDir() {
		return nil, serrors.Filesystem(dir, fmt.Errorf("not a directory"))
	}

	b := &Bundle{Dir: dir, RunID: runID}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		b.Entries = append(b.Entries, Entry{Rel: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, serrors.Filesystem(dir, err)
	}
	sort.Slice(b.Entries, func(i, j int) bool { return b.Entries[i].Rel < b.Entries[j].Rel })
	return b, nil
}

// New returns the deployer selected by cfg. root is the project root, used
// to find the default git remote.
func New(cfg *config.DeployConfig, root string, out *output.Writer) (Deployer, error) {
	if out == nil {
		out = output.Discard()
	}
	switch cfg.Provider {
	case config.ProviderGitHubPages, "":
		return &GitPages{
			Dir:     root,
			Remote:  cfg.Remote,
			Branch:  cfg.Branch,
			Message: cfg.Message,
			Out:     out,
		}, nil
	case config.ProviderS3:
		return NewS3(cfg.S3, out)
	default:
		return nil, serrors.Configf("unknown deploy provider %q", cfg.Provider)
	}
}

// ExpandMessage substitutes the run ID into a commit message template.
func ExpandMessage(template, runID string) string {
	return strings.ReplaceAll(template, RunPlaceholder, runID)
}
