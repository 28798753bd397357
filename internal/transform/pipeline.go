package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/fileset"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

// Env carries what a pipeline needs from its surroundings.
type Env struct {
	SourceDir string         // Root the selector resolves against
	Out       *output.Writer // Optional; nil discards

	// Written, if set, receives the destination-relative slash paths a run
	// wrote, source maps excluded.
	Written func(paths []string)
}

// Pipeline reads a file set, applies Steps in order and writes the result under Dest.
type Pipeline struct {
	Name   string
	Source fileset.Selector
	Steps  []Transform
	Dest   string // Absolute output directory

	// Changed skips inputs whose output is newer than the input.
	Changed bool
}

// Run executes the pipeline once. A selector that matches nothing makes the
// run a no-op.
func (p *Pipeline) Run(ctx context.Context, env Env) error {
	out := env.Out
	if out == nil {
		out = output.Discard()
	}

	selected, err := p.Source.Resolve(env.SourceDir)
	if err != nil {
		return &serrors.SitepipeError{Kind: serrors.KindConfig, Task: p.Name, Message: "resolve inputs", Cause: err}
	}
	if p.Changed {
		selected, err = fileset.Changed(selected, p.Dest)
		if err != nil {
			return serrors.Filesystem(p.Dest, err)
		}
	}
	if len(selected) == 0 {
		out.Debug("%s: no input files", p.Name)
		return nil
	}

	files, err := readFiles(ctx, selected)
	if err != nil {
		return err
	}

	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		files, err = step.Apply(ctx, files)
		if err != nil {
			return p.stepError(step, err)
		}
	}

	written, err := p.write(ctx, files)
	if err != nil {
		return err
	}
	out.Debug("%s: wrote %d file(s) to %s", p.Name, len(written), p.Dest)
	if env.Written != nil && len(written) > 0 {
		env.Written(written)
	}
	return nil
}

func (p *Pipeline) stepError(step Transform, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *serrors.SitepipeError
	if errors.As(err, &se) {
		if se.Task == "" {
			se.Task = p.Name
		}
		return se
	}
	return serrors.Transform(p.Name, step.Name(), err)
}

func readFiles(ctx context.Context, selected []fileset.File) ([]File, error) {
	files := make([]File, 0, len(selected))
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(s.Path)
		if err != nil {
			return nil, serrors.Filesystem(s.Path, err)
		}
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, serrors.Filesystem(s.Path, err)
		}
		files = append(files, File{
			Path:     s.Rel,
			Source:   s.Path,
			Contents: data,
			ModTime:  info.ModTime(),
		})
	}
	return files, nil
}

func (p *Pipeline) write(ctx context.Context, files []File) ([]string, error) {
	claims := ClaimsFrom(ctx)
	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		dest, err := p.destPath(f.Path)
		if err != nil {
			return written, err
		}
		if err := p.writeOne(claims, dest, f.Contents); err != nil {
			return written, err
		}
		if f.SourceMap != nil {
			if err := p.writeOne(claims, dest+".map", f.SourceMap); err != nil {
				return written, err
			}
		}
		written = append(written, f.Path)
	}
	return written, nil
}

func (p *Pipeline) destPath(rel string) (string, error) {
	dest := filepath.Join(p.Dest, filepath.FromSlash(rel))
	back, err := filepath.Rel(p.Dest, dest)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", &serrors.SitepipeError{
			Kind:    serrors.KindTransform,
			Task:    p.Name,
			Message: fmt.Sprintf("output path %q escapes %s", rel, p.Dest),
		}
	}
	return dest, nil
}

func (p *Pipeline) writeOne(claims *OutputClaims, dest string, data []byte) error {
	if claims != nil {
		if err := claims.Claim(dest, p.Name); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return serrors.Filesystem(filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return serrors.Filesystem(dest, err)
	}
	return nil
}
