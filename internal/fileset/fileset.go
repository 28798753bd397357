// Package fileset resolves glob selectors against a directory tree.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Selector describes a set of input files with doublestar patterns.
// Patterns are slash-separated and relative to the resolved root.
type Selector struct {
	Include []string
	Exclude []string

	// Base is stripped from matched paths to form File.Rel. When empty,
	// each include pattern uses its own static prefix ("img/**/*" -> "img").
	// Use "." to keep paths relative to the root.
	Base string
}

// File is a resolved input file.
type File struct {
	Path string // Absolute path on disk
	Src  string // Slash path relative to the root
	Rel  string // Slash path relative to the selector base, used for output placement
}

// Validate checks that every pattern is well-formed.
func (s Selector) Validate() error {
	for _, p := range s.Include {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid include pattern %q", p)
		}
	}
	for _, p := range s.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

// Resolve returns the files under root selected by s. Files keep include
// pattern order and are sorted within each pattern; a file matched by several
// patterns appears once. Matching nothing, including a missing root, is not an error.
func (s Selector) Resolve(root string) ([]File, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absRoot); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	fsys := os.DirFS(absRoot)
	seen := make(map[string]bool)
	var files []File

	for _, pattern := range s.Include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		sort.Strings(matches)

		base := s.Base
		if base == "" {
			base = staticPrefix(pattern)
		}

		for _, m := range matches {
			if seen[m] || s.excluded(m) {
				continue
			}
			seen[m] = true
			files = append(files, File{
				Path: filepath.Join(absRoot, filepath.FromSlash(m)),
				Src:  m,
				Rel:  relTo(base, m),
			})
		}
	}
	return files, nil
}

// Match reports whether a slash path relative to the root is selected by s.
// It does not touch the filesystem, so it also answers for deleted files.
func (s Selector) Match(src string) bool {
	src = path.Clean(filepath.ToSlash(src))
	if s.excluded(src) {
		return false
	}
	for _, p := range s.Include {
		if ok, _ := doublestar.Match(p, src); ok {
			return true
		}
	}
	return false
}

func (s Selector) excluded(src string) bool {
	for _, p := range s.Exclude {
		if ok, _ := doublestar.Match(p, src); ok {
			return true
		}
	}
	return false
}

// staticPrefix returns the directory part of a pattern before its first
// meta character.
func staticPrefix(pattern string) string {
	base, _ := doublestar.SplitPattern(pattern)
	return base
}

func relTo(base, src string) string {
	base = path.Clean(base)
	if base == "." || base == "" {
		return src
	}
	if rel, ok := strings.CutPrefix(src, base+"/"); ok {
		return rel
	}
	return src
}

// Changed filters files down to those whose destination under destDir is
// missing or older than the source.
func Changed(files []File, destDir string) ([]File, error) {
	var out []File
	for _, f := range files {
		srcInfo, err := os.Stat(f.Path)
		if err != nil {
			return nil, err
		}
		destInfo, err := os.Stat(filepath.Join(destDir, filepath.FromSlash(f.Rel)))
		if errors.Is(err, fs.ErrNotExist) {
			out = append(out, f)
			continue
		}
		if err != nil {
			return nil, err
		}
		if srcInfo.ModTime().After(destInfo.ModTime()) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Remove deletes everything under root matched by patterns. Patterns that
// match a directory remove it recursively. It returns the removed paths,
// relative to root.
func Remove(root string, patterns []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absRoot); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	fsys := os.DirFS(absRoot)
	var removed []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return removed, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return removed, fmt.Errorf("glob %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			target := filepath.Join(absRoot, filepath.FromSlash(m))
			if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
				// Already gone with a removed parent directory.
				continue
			}
			if err := os.RemoveAll(target); err != nil {
				return removed, err
			}
			removed = append(removed, m)
		}
	}
	return removed, nil
}
