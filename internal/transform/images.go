package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultJPEGQuality is used when ImageOptimize.JPEGQuality is unset.
const DefaultJPEGQuality = 75

// ImageOptimize re-encodes JPEG, PNG and GIF images and minifies SVG. A
// result that is not smaller than its input is discarded, so optimization
// never grows a file. Other files pass through unchanged.
type ImageOptimize struct {
	JPEGQuality int
	Workers     int // Files optimized at once; defaults to the CPU count
}

func (o *ImageOptimize) Name() string { return "optimize-images" }

func (o *ImageOptimize) Apply(ctx context.Context, files []File) ([]File, error) {
	quality := o.JPEGQuality
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	m := newMinifier()

	out := make([]File, len(files))
	err := forEachLimit(ctx, len(files), o.Workers, func(i int) error {
		f := files[i]
		optimized, err := optimizeImage(f, quality, func(data []byte) ([]byte, error) {
			return m.Bytes(mimeSVG, data)
		})
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		if len(optimized) < len(f.Contents) {
			f.Contents = optimized
		}
		out[i] = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func optimizeImage(f File, quality int, svg func([]byte) ([]byte, error)) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(path.Ext(f.Path)) {
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bytes.NewReader(f.Contents))
		if err != nil {
			return nil, err
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	case ".png":
		img, err := png.Decode(bytes.NewReader(f.Contents))
		if err != nil {
			return nil, err
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	case ".gif":
		g, err := gif.DecodeAll(bytes.NewReader(f.Contents))
		if err != nil {
			return nil, err
		}
		if err := gif.EncodeAll(&buf, g); err != nil {
			return nil, err
		}
	case ".svg":
		return svg(f.Contents)
	default:
		return f.Contents, nil
	}
	return buf.Bytes(), nil
}

// IsRaster reports whether a path names a JPEG or PNG image.
func IsRaster(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// decodeConfig reads the image header without decoding pixels.
func decodeConfig(data []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(data))
}

// forEachLimit calls fn for 0..n-1 with at most workers calls in flight and
// returns the first error.
func forEachLimit(ctx context.Context, n, workers int, fn func(i int) error) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
