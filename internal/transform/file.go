// Package transform wraps external asset tools behind a uniform
// read-transform-write shape.
//
// A Pipeline resolves a fileset.Selector, threads the files through a list of
// Transform steps, and writes the result under a destination directory. Each
// step is an opaque collaborator: Sass, esbuild, the minifiers, the image
// encoders. A step that fails aborts the pipeline with a KindTransform error.
package transform

import (
	"context"
	"path"
	"strings"
	"time"
)

// File is an in-memory file flowing through a pipeline.
type File struct {
	Path      string // Slash path relative to the pipeline destination
	Source    string // Absolute path of the input the file was derived from
	Contents  []byte
	ModTime   time.Time
	SourceMap []byte // Written to Path + ".map" when set
}

// WithExt returns a copy of f whose Path carries ext instead of its current extension.
func (f File) WithExt(ext string) File {
	f.Path = strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext
	return f
}

// Transform is one step of a pipeline.
type Transform interface {
	Name() string
	Apply(ctx context.Context, files []File) ([]File, error)
}

// eachFile applies fn to every file in order, stopping at the first error or
// when ctx is canceled.
func eachFile(ctx context.Context, files []File, fn func(File) (File, error)) ([]File, error) {
	out := make([]File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := fn(f)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
