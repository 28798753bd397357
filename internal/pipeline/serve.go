package pipeline

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/fileset"
	"github.com/AndreyAkinshin/sitepipe/internal/livereload"
	"github.com/AndreyAkinshin/sitepipe/internal/taskgraph"
	"github.com/AndreyAkinshin/sitepipe/internal/watch"
)

const shutdownTimeout = 5 * time.Second

func (p *Pipeline) binding(name string, sel fileset.Selector, task taskgraph.Task) watch.Binding {
	return watch.Binding{Name: name, Selector: sel, Task: task, Policy: watch.Policy(p.cfg.Watch.Policy)}
}

func (p *Pipeline) styleSelector() fileset.Selector {
	dir := path.Dir(p.cfg.Style.Entry)
	return fileset.Selector{Include: []string{path.Join(dir, "**/*.{scss,sass}")}}
}

func (p *Pipeline) scriptSelector() fileset.Selector {
	return fileset.Selector{Include: p.cfg.Script.Include, Exclude: p.cfg.Script.Exclude}
}

func (p *Pipeline) htmlSelector() fileset.Selector {
	return fileset.Selector{Include: p.cfg.HTML.Include}
}

// imageSelector excludes the sprite sources, which have their own binding.
func (p *Pipeline) imageSelector() fileset.Selector {
	return fileset.Selector{Include: p.cfg.Images.Include, Exclude: p.cfg.Sprite.Include}
}

func (p *Pipeline) spriteSelector() fileset.Selector {
	return fileset.Selector{Include: p.cfg.Sprite.Include}
}

func (p *Pipeline) thenReload(name string, tasks ...string) taskgraph.Task {
	members := make([]taskgraph.Task, 0, len(tasks)+1)
	for _, t := range tasks {
		members = append(members, p.mustTask(t))
	}
	return taskgraph.Series(name, append(members, p.mustTask(TaskReload))...)
}

// DevBindings are the watch bindings of the dev server. Stylesheets are
// injected, everything else reloads the page.
func (p *Pipeline) DevBindings() []watch.Binding {
	return []watch.Binding{
		p.binding("style", p.styleSelector(), p.mustTask(TaskDevStyle)),
		p.binding("html", p.htmlSelector(), p.mustTask(TaskReload)),
		p.binding("script", p.scriptSelector(), p.thenReload("devScriptReload", TaskDevScript)),
		p.binding("images", p.imageSelector(), p.mustTask(TaskReload)),
		p.binding("sprite", p.spriteSelector(), p.thenReload("devSpriteReload", TaskDevSprite)),
	}
}

// ProdBindings are the watch bindings of the build server.
func (p *Pipeline) ProdBindings() []watch.Binding {
	return []watch.Binding{
		p.binding("style", p.styleSelector(), p.mustTask(TaskProdStyle)),
		p.binding("html", p.htmlSelector(), p.thenReload("htmlReload", TaskHTML)),
		p.binding("script", p.scriptSelector(), p.thenReload("prodScriptReload", TaskProdScript)),
		p.binding("images", p.imageSelector(), p.thenReload("imagesReload", TaskImages, TaskImagesWebP)),
		p.binding("sprite", p.spriteSelector(), p.thenReload("prodSpriteReload", TaskProdSprite)),
	}
}

// serve runs the live-reload server on root and dispatches source changes to
// bindings until ctx is canceled. Failing to start the server is fatal;
// failing watch runs are reported and serving continues.
func (p *Pipeline) serve(ctx context.Context, root string, bindings []watch.Binding) error {
	sc := p.cfg.Server
	opts := livereload.Options{
		Root: root,
		Host: sc.Host,
		Port: sc.Port,
		CORS: config.Enabled(sc.CORS, true),
		Out:  p.out,
	}
	if p.metrics != nil {
		opts.Metrics = p.metrics.Handler()
	}
	srv, err := livereload.New(opts)
	if err != nil {
		return err
	}
	if err := srv.Stat(); err != nil {
		return err
	}

	w, err := watch.New(bindings, watch.Options{
		Debounce:  time.Duration(p.cfg.Watch.DebounceMS) * time.Millisecond,
		QueueSize: p.cfg.Watch.QueueSize,
		Out:       p.out,
		Run:       p.runTriggered,
	})
	if err != nil {
		return serrors.Configf("watch: %v", err)
	}
	src, err := watch.NewFSWatcher(p.srcDir, p.buildDir)
	if err != nil {
		return serrors.Filesystem(p.srcDir, err)
	}
	defer src.Close()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	p.setServer(srv)
	defer p.setServer(nil)

	if sc.Open {
		if err := livereload.OpenBrowser(srv.URL()); err != nil {
			p.out.WarningSimple("could not open a browser: %v", err)
		}
	}
	p.out.Action("Watching %s for changes (Ctrl+C to stop)", p.srcDir)

	werr := w.Run(ctx, src)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	serr := srv.Shutdown(shutdownCtx)
	return errors.Join(werr, serr)
}
