// Package imaging recompresses thumbnails before upload.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"glabassets/internal/infrastructure"
)

const (
	DefaultMaxBytes      = 500 * 1024
	DefaultMaxWidth      = 1920
	DefaultMaxHeight     = 1080
	DefaultMaxIterations = 5

	minQuality = 10
	maxQuality = 100
)

// ErrEmptyImage is returned for a zero-length input.
var ErrEmptyImage = errors.New("image is empty")

// Options bounds the compressor output.
type Options struct {
	MaxBytes      int
	MaxWidth      int
	MaxHeight     int
	MaxIterations int
}

// DefaultOptions returns the thumbnail limits: 500 KB within 1920x1080.
func DefaultOptions() Options {
	return Options{
		MaxBytes:      DefaultMaxBytes,
		MaxWidth:      DefaultMaxWidth,
		MaxHeight:     DefaultMaxHeight,
		MaxIterations: DefaultMaxIterations,
	}
}

// Result describes what Compress produced.
type Result struct {
	InputBytes  int
	OutputBytes int
	Width       int
	Height      int
	Quality     int
	Iterations  int
	ContentType string
	// FellBack is set when the original bytes were returned unchanged,
	// either because the input could not be decoded or because no quality
	// in the search fit under the ceiling. The output may then exceed
	// MaxBytes.
	FellBack bool
}

// Compressor downsizes and re-encodes images as JPEG.
type Compressor struct {
	opts    Options
	metrics *infrastructure.AppMetrics
	logger  *slog.Logger
}

// NewCompressor returns a compressor. Zero option fields take defaults.
func NewCompressor(opts Options, metrics *infrastructure.AppMetrics, logger *slog.Logger) *Compressor {
	def := DefaultOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = def.MaxHeight
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Compressor{
		opts:    opts,
		metrics: metrics,
		logger:  infrastructure.WithComponent(logger, "imaging"),
	}
}

// Compress fits data within the configured dimensions and searches for the
// highest JPEG quality whose encoding is at most maxBytes. A non-positive
// maxBytes uses the configured ceiling.
func (c *Compressor) Compress(ctx context.Context, data []byte, maxBytes int) ([]byte, Result, error) {
	if len(data) == 0 {
		return nil, Result{}, ErrEmptyImage
	}
	if maxBytes <= 0 {
		maxBytes = c.opts.MaxBytes
	}

	res := Result{InputBytes: len(data)}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.logger.WarnContext(ctx, "Image not decodable, shipping original",
			slog.Int("bytes", len(data)),
			slog.String("error", err.Error()))
		return c.fallback(ctx, data, res), res.withFallback(data), nil
	}

	img := Fit(src, c.opts.MaxWidth, c.opts.MaxHeight)
	b := img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()

	var best []byte
	lo, hi := minQuality, maxQuality
	for i := 0; i < c.opts.MaxIterations && lo <= hi; i++ {
		q := (lo + hi + 1) / 2
		res.Iterations++

		encoded, err := encodeJPEG(img, q)
		if err != nil {
			return nil, res, fmt.Errorf("failed to encode jpeg at quality %d: %w", q, err)
		}

		if len(encoded) <= maxBytes {
			if q > res.Quality {
				best = encoded
				res.Quality = q
			}
			lo = q + 1
		} else {
			hi = q - 1
		}
	}

	if best == nil {
		c.logger.WarnContext(ctx, "No quality fits the size ceiling, shipping original",
			slog.String("format", format),
			slog.Int("bytes", len(data)),
			slog.Int("max_bytes", maxBytes),
			slog.Int("iterations", res.Iterations))
		return c.fallback(ctx, data, res), res.withFallback(data), nil
	}

	res.OutputBytes = len(best)
	res.ContentType = "image/jpeg"
	c.metrics.RecordCompression(ctx, res.InputBytes, res.OutputBytes, false)

	c.logger.DebugContext(ctx, "Image recompressed",
		slog.String("format", format),
		slog.Int("width", res.Width),
		slog.Int("height", res.Height),
		slog.Int("quality", res.Quality),
		slog.Int("in_bytes", res.InputBytes),
		slog.Int("out_bytes", res.OutputBytes))
	return best, res, nil
}

func (c *Compressor) fallback(ctx context.Context, data []byte, res Result) []byte {
	c.metrics.RecordCompression(ctx, res.InputBytes, len(data), true)
	return data
}

func (r Result) withFallback(data []byte) Result {
	r.FellBack = true
	r.OutputBytes = len(data)
	r.Quality = 0
	r.ContentType = DetectContentType(data)
	return r
}

// Fit scales src down to fit maxW x maxH preserving aspect ratio. Images
// already inside the box are returned unchanged.
func Fit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := FitDimensions(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// FitDimensions returns the largest size no bigger than w x h that fits
// within maxW x maxH with the same aspect ratio.
func FitDimensions(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return min(nw, maxW), min(nh, maxH)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
