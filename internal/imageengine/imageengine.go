// Package imageengine is the still-image backend built on imaging and
// libwebp.
package imageengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/jmylchreest/mediaxcode/internal/backend"
	"github.com/jmylchreest/mediaxcode/internal/config"
	"github.com/jmylchreest/mediaxcode/internal/observability"
	"github.com/jmylchreest/mediaxcode/internal/request"
	"github.com/jmylchreest/mediaxcode/internal/transform"
	"github.com/jmylchreest/mediaxcode/pkg/format"
)

// ErrNoSource is returned by Read before a successful Load.
var ErrNoSource = errors.New("imageengine: no source loaded")

// UnsupportedFormatError reports an output format the engine cannot encode.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("imageengine: unsupported output format %q", e.Format)
}

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatWebP = "webp"
)

var formatAliases = map[string]string{
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
	"png":  FormatPNG,
	"gif":  FormatGIF,
	"webp": FormatWebP,
}

// FormatFor maps an extension (".jpg") or format name ("jpg") to an output
// format.
func FormatFor(name string) (string, bool) {
	f, ok := formatAliases[strings.ToLower(strings.TrimPrefix(name, "."))]
	return f, ok
}

// Engine decodes one image and applies operations in memory.
type Engine struct {
	cfg    config.ImageConfig
	req    *request.Params
	logger *slog.Logger

	src      []byte
	ext      string
	img      image.Image
	modified bool
}

var _ backend.Backend = (*Engine)(nil)

// New creates an engine. req may be nil.
func New(cfg config.ImageConfig, req *request.Params, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if req == nil {
		req = &request.Params{}
	}
	return &Engine{
		cfg:    cfg,
		req:    req,
		logger: observability.WithComponent(logger, "image"),
	}
}

// Load decodes buf.
func (e *Engine) Load(ctx context.Context, buf []byte, ext string) error {
	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("imageengine: decoding source: %w", err)
	}
	e.src = buf
	e.ext = ext
	e.img = img
	e.modified = false

	b := img.Bounds()
	e.logger.DebugContext(ctx, "image loaded",
		slog.String("size", format.Bytes(int64(len(buf)))),
		slog.String("dimensions", format.Dimensions(b.Dx(), b.Dy())),
	)
	return nil
}

// Image returns the current image.
func (e *Engine) Image() image.Image { return e.img }

// Size returns the current image size.
func (e *Engine) Size() transform.Size {
	if e.img == nil {
		return transform.Size{}
	}
	b := e.img.Bounds()
	return transform.Size{Width: b.Dx(), Height: b.Dy()}
}

func (e *Engine) apply(img image.Image) {
	e.img = img
	e.modified = true
}

func (e *Engine) Resize(width, height int) {
	e.apply(imaging.Resize(e.img, width, height, imaging.Lanczos))
}

func (e *Engine) Crop(left, top, right, bottom int) {
	e.apply(imaging.Crop(e.img, image.Rect(left, top, right, bottom)))
}

// Rotate turns the image clockwise by degrees, matching the ffmpeg rotate
// filter and gifsicle. imaging rotates counter-clockwise.
func (e *Engine) Rotate(degrees int) {
	switch ((degrees % 360) + 360) % 360 {
	case 0:
	case 90:
		e.apply(imaging.Rotate270(e.img))
	case 180:
		e.apply(imaging.Rotate180(e.img))
	case 270:
		e.apply(imaging.Rotate90(e.img))
	default:
		e.apply(imaging.Rotate(e.img, -float64(degrees), color.Transparent))
	}
}

func (e *Engine) FlipVertically()     { e.apply(imaging.FlipV(e.img)) }
func (e *Engine) FlipHorizontally()   { e.apply(imaging.FlipH(e.img)) }
func (e *Engine) ConvertToGrayscale() { e.apply(imaging.Grayscale(e.img)) }

// Reorientate applies the EXIF orientation of the source. It only has an
// effect before any other operation.
func (e *Engine) Reorientate() {
	if e.modified || e.src == nil {
		return
	}
	img, err := imaging.Decode(bytes.NewReader(e.src), imaging.AutoOrientation(true))
	if err != nil {
		return
	}
	if img.Bounds() != e.img.Bounds() || !sameOrigin(img, e.img) {
		e.apply(img)
	}
}

// sameOrigin is a cheap check for whether an orientation changed pixels.
func sameOrigin(a, b image.Image) bool {
	ab, bb := a.Bounds(), b.Bounds()
	r1, g1, b1, a1 := a.At(ab.Min.X, ab.Min.Y).RGBA()
	r2, g2, b2, a2 := b.At(bb.Min.X, bb.Min.Y).RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

// IsMultiple always reports false.
func (e *Engine) IsMultiple() bool { return false }

// Cleanup drops the image.
func (e *Engine) Cleanup() {
	e.src = nil
	e.img = nil
}

// OutputFormat resolves the format for ext. An image format set on the
// request wins.
func (e *Engine) OutputFormat(ext string) (string, error) {
	if f, ok := FormatFor(e.req.Format); ok {
		return f, nil
	}
	if f, ok := FormatFor(ext); ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Format: strings.TrimPrefix(ext, ".")}
}

// Read encodes the current image. An unmodified source read without quality
// and in its own format is returned as is.
func (e *Engine) Read(ctx context.Context, ext string, quality *int) ([]byte, error) {
	if e.img == nil {
		return nil, ErrNoSource
	}

	out, err := e.OutputFormat(ext)
	if err != nil {
		return nil, err
	}
	if quality == nil && !e.modified {
		if in, ok := FormatFor(e.ext); ok && in == out {
			return e.src, nil
		}
	}

	q := e.cfg.DefaultQuality
	if quality != nil {
		q = *quality
	}

	var buf bytes.Buffer
	switch out {
	case FormatWebP:
		opts := &webp.Options{Quality: float32(q)}
		if e.req.Lossless != nil {
			opts.Lossless = *e.req.Lossless
		}
		err = webp.Encode(&buf, e.img, opts)
	case FormatJPEG:
		err = imaging.Encode(&buf, e.img, imaging.JPEG, imaging.JPEGQuality(q))
	case FormatPNG:
		err = imaging.Encode(&buf, e.img, imaging.PNG)
	case FormatGIF:
		err = imaging.Encode(&buf, e.img, imaging.GIF)
	}
	if err != nil {
		return nil, fmt.Errorf("imageengine: encoding %s: %w", out, err)
	}

	e.logger.DebugContext(ctx, "image encoded",
		slog.String("format", out),
		slog.Int("quality", q),
		slog.String("size", format.Bytes(int64(buf.Len()))),
	)
	return buf.Bytes(), nil
}
