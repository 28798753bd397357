package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
)

// DefaultWebPQuality is used when WebP.Quality is unset.
const DefaultWebPQuality = 75

// Encoder converts a raster image to WebP.
type Encoder interface {
	Encode(ctx context.Context, data []byte, quality int) ([]byte, error)
}

// CWebP encodes with the cwebp command line tool.
type CWebP struct {
	Command string // Defaults to "cwebp"
}

func (c CWebP) command() string {
	if c.Command == "" {
		return "cwebp"
	}
	return c.Command
}

// Available reports whether the encoder binary can be found.
func (c CWebP) Available() bool {
	_, err := exec.LookPath(c.command())
	return err == nil
}

func (c CWebP) Encode(ctx context.Context, data []byte, quality int) ([]byte, error) {
	bin, err := exec.LookPath(c.command())
	if err != nil {
		return nil, serrors.Environmentf("WebP encoder %q not found in PATH", c.command())
	}

	dir, err := os.MkdirTemp("", "sitepipe-webp-")
	if err != nil {
		return nil, serrors.Filesystem(os.TempDir(), err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out.webp")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, serrors.Filesystem(in, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-quiet", "-q", strconv.Itoa(quality), in, "-o", out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return os.ReadFile(out)
}

// WebP converts each JPEG and PNG input into a .webp file next to it.
// Other inputs are dropped.
type WebP struct {
	Encoder Encoder
	Quality int
	Workers int
}

func (w *WebP) Name() string { return "webp" }

func (w *WebP) Apply(ctx context.Context, files []File) ([]File, error) {
	quality := w.Quality
	if quality == 0 {
		quality = DefaultWebPQuality
	}

	var eligible []File
	from := make(map[string]string)
	for _, f := range files {
		if !IsRaster(f.Path) {
			continue
		}
		r := f.WithExt(".webp")
		if prev, ok := from[r.Path]; ok {
			return nil, fmt.Errorf("%s and %s both convert to %s", prev, f.Path, r.Path)
		}
		from[r.Path] = f.Path
		eligible = append(eligible, f)
	}

	out := make([]File, len(eligible))
	err := forEachLimit(ctx, len(eligible), w.Workers, func(i int) error {
		f := eligible[i]
		if _, _, err := decodeConfig(f.Contents); err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		data, err := w.Encoder.Encode(ctx, f.Contents, quality)
		if err != nil {
			var se *serrors.SitepipeError
			if errors.As(err, &se) && se.Kind == serrors.KindEnvironment {
				return se
			}
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		r := f.WithExt(".webp")
		r.Contents = data
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
