package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/fileset"
	"github.com/AndreyAkinshin/sitepipe/internal/taskgraph"
	"github.com/AndreyAkinshin/sitepipe/internal/transform"
)

// Names of the built-in tasks.
const (
	TaskClean      = "clean"
	TaskCleanJunk  = "cleanJunk"
	TaskDevStyle   = "devStyle"
	TaskProdStyle  = "prodStyle"
	TaskDevScript  = "devScript"
	TaskProdScript = "prodScript"
	TaskDevSprite  = "devSprite"
	TaskProdSprite = "prodSprite"
	TaskHTML       = "html"
	TaskImages     = "images"
	TaskImagesWebP = "imagesWebp"
	TaskReload     = "reload"
)

var builtinSummaries = map[string]string{
	TaskClean:      "remove the build tree",
	TaskCleanJunk:  "remove stray files from the build tree",
	TaskDevStyle:   "compile Sass into the source tree",
	TaskProdStyle:  "compile, prefix and minify Sass into the build tree",
	TaskDevScript:  "bundle scripts into the source tree",
	TaskProdScript: "bundle and minify scripts into the build tree",
	TaskDevSprite:  "build the SVG sprite into the source tree",
	TaskProdSprite: "optimize icons and build the SVG sprite",
	TaskHTML:       "minify HTML pages",
	TaskImages:     "optimize changed images",
	TaskImagesWebP: "encode WebP variants",
	TaskReload:     "notify live-reload clients",
}

// buildTasks registers every named task. Copy tasks follow the built-ins in
// configuration order.
func (p *Pipeline) buildTasks() {
	cfg := p.cfg
	style, script, sprite := cfg.Style, cfg.Script, cfg.Sprite

	styleSource := fileset.Selector{Include: []string{style.Entry}, Base: path.Dir(style.Entry)}
	includePaths := make([]string, 0, len(style.IncludePaths))
	for _, ip := range style.IncludePaths {
		includePaths = append(includePaths, p.inSource(ip))
	}
	styleMaps := config.Enabled(style.Sourcemaps, true)

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskDevStyle,
		Source: styleSource,
		Steps: []transform.Transform{
			&transform.Sass{Compiler: p.sass, IncludePaths: includePaths, SourceMaps: styleMaps},
		},
		Dest: p.inSource(style.DevOutput),
	}, p.injector(style.DevOutput)))

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskProdStyle,
		Source: styleSource,
		Steps: []transform.Transform{
			&transform.Sass{Compiler: p.sass, IncludePaths: includePaths, SourceMaps: styleMaps},
			&transform.Prefix{Browsers: style.Browsers, Minify: true},
		},
		Dest: p.inBuild(style.Output),
	}, p.injector(style.Output)))

	scriptSource := fileset.Selector{Include: script.Include, Exclude: script.Exclude, Base: "."}
	scriptMaps := config.Enabled(script.Sourcemaps, true)

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskDevScript,
		Source: scriptSource,
		Steps:  []transform.Transform{&transform.Concat{Path: script.Bundle, SourceMaps: scriptMaps}},
		Dest:   p.inSource(script.DevOutput),
	}, nil))

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskProdScript,
		Source: scriptSource,
		Steps: []transform.Transform{
			&transform.Concat{Path: script.Bundle, SourceMaps: scriptMaps},
			&transform.ScriptMinify{Target: script.Target},
		},
		Dest: p.inBuild(script.Output),
	}, nil))

	spriteSource := fileset.Selector{Include: sprite.Include, Base: "."}

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskDevSprite,
		Source: spriteSource,
		Steps:  []transform.Transform{&transform.Sprite{Path: sprite.Name}},
		Dest:   p.inSource(sprite.DevOutput),
	}, nil))

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskProdSprite,
		Source: spriteSource,
		Steps:  []transform.Transform{transform.SVGOptimize{}, &transform.Sprite{Path: sprite.Name}},
		Dest:   p.inBuild(sprite.Output),
	}, nil))

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskHTML,
		Source: fileset.Selector{Include: cfg.HTML.Include, Exclude: cfg.HTML.Exclude, Base: "."},
		Steps:  []transform.Transform{transform.HTMLMinify{}},
		Dest:   p.buildDir,
	}, nil))

	img := cfg.Images
	p.add(p.transformTask(&transform.Pipeline{
		Name:    TaskImages,
		Source:  fileset.Selector{Include: img.Include, Exclude: img.Exclude},
		Steps:   []transform.Transform{&transform.ImageOptimize{JPEGQuality: img.JPEGQuality, Workers: p.workers}},
		Dest:    p.inBuild(img.Output),
		Changed: true,
	}, nil))

	p.add(p.transformTask(&transform.Pipeline{
		Name:   TaskImagesWebP,
		Source: fileset.Selector{Include: img.WebP.Include},
		Steps:  []transform.Transform{&transform.WebP{Encoder: p.encoder, Quality: img.WebP.Quality, Workers: p.workers}},
		Dest:   p.inBuild(img.Output),
	}, nil))

	p.add(taskgraph.Func(TaskClean, p.clean))
	p.add(taskgraph.Func(TaskCleanJunk, p.cleanJunk))
	p.add(taskgraph.Func(TaskReload, p.reload))

	for _, c := range cfg.Copy {
		p.copyTasks = append(p.copyTasks, c.Name)
		p.summaries[c.Name] = fmt.Sprintf("copy %s to %s", strings.Join(c.Include, ", "), path.Join("build", c.Output))
		p.add(p.transformTask(&transform.Pipeline{
			Name:   c.Name,
			Source: fileset.Selector{Include: c.Include, Base: c.Base},
			Dest:   p.inBuild(c.Output),
		}, nil))
	}
}

// Summary returns a one-line description of a named task.
func (p *Pipeline) Summary(name string) string {
	if s, ok := p.summaries[name]; ok {
		return s
	}
	return builtinSummaries[name]
}

func (p *Pipeline) add(t taskgraph.Task) {
	p.tasks[t.Name()] = t
	p.names = append(p.names, t.Name())
}

func (p *Pipeline) transformTask(tp *transform.Pipeline, written func([]string)) taskgraph.Task {
	return taskgraph.Func(tp.Name, func(ctx context.Context) error {
		return tp.Run(ctx, transform.Env{SourceDir: p.srcDir, Out: p.out, Written: written})
	})
}

// injector streams freshly written stylesheets into connected pages. dir is
// the output directory relative to the served root.
func (p *Pipeline) injector(dir string) func([]string) {
	return func(written []string) {
		srv := p.Server()
		if srv == nil {
			return
		}
		urls := make([]string, 0, len(written))
		for _, w := range written {
			urls = append(urls, path.Join(filepath.ToSlash(dir), w))
		}
		srv.Inject(urls...)
	}
}

func (p *Pipeline) clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(p.buildDir); err != nil {
		return serrors.Filesystem(p.buildDir, err)
	}
	p.out.Debug("removed %s", p.buildDir)
	return nil
}

func (p *Pipeline) cleanJunk(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := fileset.Remove(p.buildDir, p.cfg.Clean.Junk)
	if err != nil {
		return serrors.Filesystem(p.buildDir, err)
	}
	if len(removed) > 0 {
		p.out.Debug("removed junk: %s", strings.Join(removed, ", "))
	}
	return nil
}

func (p *Pipeline) reload(context.Context) error {
	if srv := p.Server(); srv != nil {
		srv.Reload()
	}
	return nil
}

func (p *Pipeline) inSource(rel string) string {
	return join(p.srcDir, rel)
}

func (p *Pipeline) inBuild(rel string) string {
	return join(p.buildDir, rel)
}

func join(dir, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(dir, filepath.FromSlash(rel))
}
