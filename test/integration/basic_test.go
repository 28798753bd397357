// Package integration contains integration tests for sitepipe.
package integration

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AndreyAkinshin/sitepipe/internal/output"
	"github.com/AndreyAkinshin/sitepipe/internal/pipeline"
	"github.com/AndreyAkinshin/sitepipe/internal/project"
	"github.com/AndreyAkinshin/sitepipe/internal/transform"
)

var (
	fixturesDirOnce sync.Once
	fixturesDirPath string
)

// fixturesDir returns the path to the test fixtures directory.
func fixturesDir() string {
	fixturesDirOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		fixturesDirPath = filepath.Join(filepath.Dir(filename), "..", "fixtures")
	})
	return fixturesDirPath
}

// copyFixture copies a fixture tree into a temp dir so builds never write
// into the repository.
func copyFixture(t *testing.T, name string) string {
	t.Helper()
	src := filepath.Join(fixturesDir(), filepath.FromSlash(name))
	dst := t.TempDir()
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
	if err != nil {
		t.Fatalf("copy fixture %s: %v", name, err)
	}
	return dst
}

// requireSass skips the test when the Dart Sass binary is not installed.
func requireSass(t *testing.T) *transform.SassCompiler {
	t.Helper()
	c := transform.NewSassCompiler(output.Discard())
	if !c.Available() {
		t.Skip("Dart Sass not installed")
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// fakeEncoder stands in for cwebp and emits a RIFF/WEBP header.
type fakeEncoder struct{}

func (fakeEncoder) Encode(_ context.Context, data []byte, _ int) ([]byte, error) {
	return append([]byte("RIFF\x00\x00\x00\x00WEBP"), data[:8]...), nil
}

func encoder() transform.Encoder {
	if c := (transform.CWebP{}); c.Available() {
		return c
	}
	return fakeEncoder{}
}

// writeImages adds a PNG and a JPEG with smooth gradients to dir.
func writeImages(t *testing.T, dir string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: 128, A: 255})
		}
	}

	var pngBuf bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string][]byte{"photo.png": pngBuf.Bytes(), "hero.jpg": jpegBuf.Bytes()} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newPipeline(t *testing.T, proj *project.Project, sass *transform.SassCompiler) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Options{
		SourceDir: proj.SourceDir(),
		BuildDir:  proj.BuildDir(),
		Root:      proj.Root,
		Config:    proj.Config,
		Out:       output.Discard(),
		Sass:      sass,
		Encoder:   encoder(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Size()
}

// codeLines drops the trailing source map comment.
func codeLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if strings.HasPrefix(line, "/*# sourceMappingURL=") || strings.HasPrefix(line, "//# sourceMappingURL=") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func TestSiteFixture_Loads(t *testing.T) {
	t.Parallel()
	fixtureDir := filepath.Join(fixturesDir(), "site")

	proj, err := project.LoadProjectFrom(fixtureDir)
	if err != nil {
		t.Fatalf("failed to load site fixture: %v", err)
	}

	if proj.Config.Server.Host != "127.0.0.1" {
		t.Errorf("server.host = %q, want 127.0.0.1", proj.Config.Server.Host)
	}
	if proj.Config.Watch.DebounceMS != 20 {
		t.Errorf("watch.debounce_ms = %d, want 20", proj.Config.Watch.DebounceMS)
	}
	if proj.Config.Style.Entry != "sass/style.scss" {
		t.Errorf("style.entry = %q, want default", proj.Config.Style.Entry)
	}
	if filepath.Base(proj.ConfigPath()) != "sitepipe.json" {
		t.Errorf("ConfigPath() = %q", proj.ConfigPath())
	}
	if len(proj.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", proj.Warnings)
	}
}

func TestSiteFixture_RootFromSubdirectory(t *testing.T) {
	t.Parallel()
	fixtureDir, err := filepath.Abs(filepath.Join(fixturesDir(), "site"))
	if err != nil {
		t.Fatal(err)
	}

	proj, err := project.LoadProjectFrom(filepath.Join(fixtureDir, "src", "js"))
	if err != nil {
		t.Fatalf("failed to load from subdirectory: %v", err)
	}
	if proj.Root != fixtureDir {
		t.Errorf("Root = %q, want %q", proj.Root, fixtureDir)
	}
	if proj.SourceDir() != filepath.Join(fixtureDir, "src") {
		t.Errorf("SourceDir() = %q", proj.SourceDir())
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	sass := requireSass(t)
	root := copyFixture(t, "site")
	writeImages(t, filepath.Join(root, "src", "img"))

	proj, err := project.LoadProjectFrom(root)
	if err != nil {
		t.Fatal(err)
	}
	p := newPipeline(t, proj, sass)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Development style: resolved variable, unminified, sidecar map.
	if err := p.RunTask(ctx, pipeline.TaskDevStyle); err != nil {
		t.Fatalf("devStyle: %v", err)
	}
	devCSS := readFile(t, filepath.Join(root, "src", "css", "style.css"))
	if !strings.Contains(devCSS, "#ff6600") {
		t.Errorf("dev CSS missing resolved $accent:\n%s", devCSS)
	}
	if len(codeLines(devCSS)) < 3 {
		t.Errorf("dev CSS should be unminified:\n%s", devCSS)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "css", "style.css.map")); err != nil {
		t.Errorf("dev source map missing: %v", err)
	}

	if err := p.Build(ctx, pipeline.BuildOptions{}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	build := filepath.Join(root, "build")

	prodCSS := readFile(t, filepath.Join(build, "css", "style.css"))
	if lines := codeLines(prodCSS); len(lines) != 1 {
		t.Errorf("prod CSS has %d lines, want 1:\n%s", len(lines), prodCSS)
	}
	if !strings.Contains(prodCSS, "#f60") && !strings.Contains(prodCSS, "#ff6600") {
		t.Errorf("prod CSS missing $accent:\n%s", prodCSS)
	}
	if !strings.Contains(prodCSS, "-webkit-user-select:none") {
		t.Errorf("prod CSS missing vendor prefix:\n%s", prodCSS)
	}

	mainJS := readFile(t, filepath.Join(build, "js", "main.js"))
	if !strings.Contains(mainJS, "counter") {
		t.Errorf("prod bundle lost its code:\n%s", mainJS)
	}

	html := readFile(t, filepath.Join(build, "index.html"))
	if !strings.HasPrefix(strings.ToLower(html), "<!doctype html>") {
		t.Errorf("prod HTML lost its doctype:\n%s", html)
	}
	for _, gone := range []string{"<!-- header -->", `type="text/javascript"`, `type="text/css"`, "  Fixture  "} {
		if strings.Contains(html, gone) {
			t.Errorf("prod HTML still contains %q:\n%s", gone, html)
		}
	}

	sprite := readFile(t, filepath.Join(build, "img", "sprite.svg"))
	if n := strings.Count(sprite, "<symbol"); n != 2 {
		t.Errorf("sprite has %d symbols, want 2", n)
	}

	for _, rel := range []string{"img/logo.svg", "img/photo.png", "img/hero.jpg"} {
		src := fileSize(t, filepath.Join(root, "src", filepath.FromSlash(rel)))
		dst := fileSize(t, filepath.Join(build, filepath.FromSlash(rel)))
		if dst > src {
			t.Errorf("%s grew from %d to %d bytes", rel, src, dst)
		}
	}
	for _, rel := range []string{"img/photo.webp", "img/hero.webp", "fonts/body.woff2", "favicon.ico", "css/style.css.map", "js/main.js.map"} {
		if _, err := os.Stat(filepath.Join(build, filepath.FromSlash(rel))); err != nil {
			t.Errorf("build/%s missing: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(build, "img", "logo.webp")); !os.IsNotExist(err) {
		t.Error("SVG must not be converted to WebP")
	}

	var junk []string
	_ = filepath.WalkDir(build, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasSuffix(name, ".txt") || strings.HasPrefix(name, "_TEMPLATE.") || (d.IsDir() && name == "svg-sprite") {
			junk = append(junk, path)
		}
		return nil
	})
	if len(junk) != 0 {
		t.Errorf("junk left in build tree: %v", junk)
	}
}
