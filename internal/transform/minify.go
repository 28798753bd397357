package transform

import (
	"context"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	mimeHTML = "text/html"
	mimeSVG  = "image/svg+xml"
)

// newMinifier registers the minifiers HTML pages need for their inline
// styles, scripts and SVG.
func newMinifier() *minify.M {
	m := minify.New()
	m.Add(mimeHTML, &html.Minifier{})
	m.Add("text/css", &css.Minifier{})
	m.AddRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), &js.Minifier{})
	m.Add(mimeSVG, &svg.Minifier{})
	return m
}

// HTMLMinify collapses whitespace, drops comments and default attributes,
// and minifies inline CSS and JavaScript. The doctype is kept.
type HTMLMinify struct{}

func (HTMLMinify) Name() string { return "minify-html" }

func (HTMLMinify) Apply(ctx context.Context, files []File) ([]File, error) {
	return minifyFiles(ctx, files, mimeHTML)
}

// SVGOptimize minifies SVG documents. The viewBox is preserved.
type SVGOptimize struct{}

func (SVGOptimize) Name() string { return "minify-svg" }

func (SVGOptimize) Apply(ctx context.Context, files []File) ([]File, error) {
	return minifyFiles(ctx, files, mimeSVG)
}

func minifyFiles(ctx context.Context, files []File, mime string) ([]File, error) {
	m := newMinifier()
	return eachFile(ctx, files, func(f File) (File, error) {
		out, err := m.Bytes(mime, f.Contents)
		if err != nil {
			return File{}, err
		}
		f.Contents = out
		return f, nil
	})
}
