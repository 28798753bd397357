package transform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"

	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

// DefaultSassBinary is the Dart Sass executable looked up in PATH.
const DefaultSassBinary = "sass"

// SassCompiler owns one Dart Sass process, started on first use and shared by
// every Sass step. It is safe for concurrent use.
type SassCompiler struct {
	Binary string         // Defaults to DefaultSassBinary
	Out    *output.Writer // Receives @warn and @debug output; nil discards

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewSassCompiler returns a compiler that logs Sass warnings to out.
func NewSassCompiler(out *output.Writer) *SassCompiler {
	return &SassCompiler{Binary: DefaultSassBinary, Out: out}
}

// Available reports whether the Sass binary can be found.
func (c *SassCompiler) Available() bool {
	_, err := exec.LookPath(c.binary())
	return err == nil
}

func (c *SassCompiler) binary() string {
	if c.Binary == "" {
		return DefaultSassBinary
	}
	return c.Binary
}

func (c *SassCompiler) start() (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transpiler != nil && !c.transpiler.IsShutDown() {
		return c.transpiler, nil
	}

	bin, err := exec.LookPath(c.binary())
	if err != nil {
		return nil, serrors.Environmentf("Dart Sass binary %q not found in PATH (install it from https://sass-lang.com/install)", c.binary())
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: bin,
		LogEventHandler:          c.logEvent,
	})
	if err != nil {
		return nil, &serrors.SitepipeError{Kind: serrors.KindEnvironment, Message: "start Dart Sass", Cause: err}
	}
	c.transpiler = t
	return t, nil
}

func (c *SassCompiler) logEvent(e godartsass.LogEvent) {
	if c.Out == nil {
		return
	}
	switch e.Type {
	case godartsass.LogEventTypeDebug:
		c.Out.Debug("sass: %s", e.Message)
	case godartsass.LogEventTypeDeprecated:
		c.Out.Debug("sass deprecation (%s): %s", e.DeprecationType, e.Message)
	default:
		c.Out.WarningSimple("sass: %s", e.Message)
	}
}

// Close stops the Sass process if it was started.
func (c *SassCompiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transpiler == nil {
		return nil
	}
	err := c.transpiler.Close()
	c.transpiler = nil
	if errors.Is(err, godartsass.ErrShutdown) {
		return nil
	}
	return err
}

// Sass compiles .scss/.sass files to CSS. Partials (files starting with "_")
// are dropped from the output.
type Sass struct {
	Compiler     *SassCompiler
	IncludePaths []string // Absolute load paths besides the entry's directory
	Compressed   bool
	SourceMaps   bool
}

func (s *Sass) Name() string { return "sass" }

func (s *Sass) Apply(ctx context.Context, files []File) ([]File, error) {
	t, err := s.Compiler.start()
	if err != nil {
		return nil, err
	}

	out := make([]File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(path.Base(f.Path), "_") {
			continue
		}
		r, err := s.compile(t, f)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Sass) compile(t *godartsass.Transpiler, f File) (File, error) {
	syntax := godartsass.SourceSyntaxSCSS
	if strings.EqualFold(path.Ext(f.Path), ".sass") {
		syntax = godartsass.SourceSyntaxSASS
	}
	style := godartsass.OutputStyleExpanded
	if s.Compressed {
		style = godartsass.OutputStyleCompressed
	}

	res, err := t.Execute(godartsass.Args{
		Source:                  string(f.Contents),
		URL:                     fileURL(f.Source),
		SourceSyntax:            syntax,
		OutputStyle:             style,
		EnableSourceMap:         s.SourceMaps,
		SourceMapIncludeSources: s.SourceMaps,
		IncludePaths:            append([]string{filepath.Dir(f.Source)}, s.IncludePaths...),
	})
	if err != nil {
		return File{}, fmt.Errorf("compile %s: %w", filepath.Base(f.Source), err)
	}

	r := f.WithExt(".css")
	css := res.CSS
	if s.SourceMaps && res.SourceMap != "" {
		r.SourceMap = []byte(res.SourceMap)
		css = strings.TrimRight(css, "\n") + sourceMapURL(path.Base(r.Path)+".map", true)
	} else if !strings.HasSuffix(css, "\n") {
		css += "\n"
	}
	r.Contents = []byte(css)
	return r, nil
}

func fileURL(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String()
}
