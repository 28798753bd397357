package transform

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var (
	browserTarget = regexp.MustCompile(`^([a-z]+)([0-9]+(?:\.[0-9]+)*)$`)

	engineNames = map[string]api.EngineName{
		"chrome":  api.EngineChrome,
		"edge":    api.EngineEdge,
		"firefox": api.EngineFirefox,
		"ie":      api.EngineIE,
		"ios":     api.EngineIOS,
		"opera":   api.EngineOpera,
		"safari":  api.EngineSafari,
	}

	scriptTargets = map[string]api.Target{
		"es2015": api.ES2015,
		"es2016": api.ES2016,
		"es2017": api.ES2017,
		"es2018": api.ES2018,
		"es2019": api.ES2019,
		"es2020": api.ES2020,
		"es2021": api.ES2021,
		"es2022": api.ES2022,
		"esnext": api.ESNext,
	}

	sourceMapComment = regexp.MustCompile(`(?m)\n?(?://|/\*)# sourceMappingURL=[^\n]*?(?: \*/)?\s*$`)
)

// Engines converts browser targets such as "safari11" or "ios12.2" into
// esbuild engines.
func Engines(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, b := range browsers {
		m := browserTarget.FindStringSubmatch(strings.ToLower(strings.TrimSpace(b)))
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", b)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", m[1], b)
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

// ScriptTarget maps a target name such as "es2015" to its esbuild value.
func ScriptTarget(name string) (api.Target, error) {
	t, ok := scriptTargets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unsupported script target %q", name)
	}
	return t, nil
}

// Prefix adds vendor prefixes required by Browsers to CSS and, when Minify is
// set, minifies it onto a single line.
type Prefix struct {
	Browsers []string
	Minify   bool
}

func (p *Prefix) Name() string { return "esbuild-css" }

func (p *Prefix) Apply(ctx context.Context, files []File) ([]File, error) {
	engines, err := Engines(p.Browsers)
	if err != nil {
		return nil, err
	}
	return eachFile(ctx, files, func(f File) (File, error) {
		return esbuildTransform(f, api.TransformOptions{
			Loader:           api.LoaderCSS,
			Engines:          engines,
			MinifyWhitespace: p.Minify,
			MinifySyntax:     p.Minify,
		}, true)
	})
}

// ScriptMinify transpiles JavaScript down to Target and minifies it.
type ScriptMinify struct {
	Target string
}

func (s *ScriptMinify) Name() string { return "esbuild-js" }

func (s *ScriptMinify) Apply(ctx context.Context, files []File) ([]File, error) {
	target, err := ScriptTarget(s.Target)
	if err != nil {
		return nil, err
	}
	return eachFile(ctx, files, func(f File) (File, error) {
		return esbuildTransform(f, api.TransformOptions{
			Loader:            api.LoaderJS,
			Target:            target,
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
			LegalComments:     api.LegalCommentsNone,
		}, false)
	})
}

// esbuildTransform runs one esbuild transform. An incoming source map is
// handed to esbuild inline so the output map chains back to the originals.
func esbuildTransform(f File, opts api.TransformOptions, css bool) (File, error) {
	input := StripSourceMapComment(string(f.Contents))
	opts.Sourcefile = path.Base(f.Path)
	if f.SourceMap != nil {
		input += inlineSourceMap(f.SourceMap, css)
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = api.SourcesContentInclude
	}

	res := api.Transform(input, opts)
	if len(res.Errors) > 0 {
		return File{}, esbuildError(res.Errors)
	}

	r := f
	r.Contents = res.Code
	r.SourceMap = nil
	if f.SourceMap != nil && len(res.Map) > 0 {
		r.SourceMap = res.Map
		r.Contents = append(r.Contents, []byte(sourceMapURL(path.Base(f.Path)+".map", css))...)
	}
	return r, nil
}

func esbuildError(msgs []api.Message) error {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("; ")
		}
		if m.Location != nil {
			fmt.Fprintf(&b, "%s:%d:%d: ", m.Location.File, m.Location.Line, m.Location.Column)
		}
		b.WriteString(m.Text)
	}
	return fmt.Errorf("%s", b.String())
}

// StripSourceMapComment removes a trailing sourceMappingURL comment.
func StripSourceMapComment(s string) string {
	return sourceMapComment.ReplaceAllString(s, "")
}

func inlineSourceMap(m []byte, css bool) string {
	return sourceMapURL("data:application/json;base64,"+base64.StdEncoding.EncodeToString(m), css)
}

func sourceMapURL(url string, css bool) string {
	if css {
		return "\n/*# sourceMappingURL=" + url + " */\n"
	}
	return "\n//# sourceMappingURL=" + url + "\n"
}
