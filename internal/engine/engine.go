package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/mediaxcode/internal/backend"
	"github.com/jmylchreest/mediaxcode/internal/gifengine"
	"github.com/jmylchreest/mediaxcode/internal/imageengine"
	"github.com/jmylchreest/mediaxcode/internal/request"
	"github.com/jmylchreest/mediaxcode/internal/sniff"
	"github.com/jmylchreest/mediaxcode/internal/transcode"
	"github.com/jmylchreest/mediaxcode/internal/transform"
)

// Engine fronts whichever backend owns the current request. Operations are
// forwarded to that backend; before Load they fail with ErrNotLoaded.
type Engine struct {
	factory *Factory
	req     *request.Params
	logger  *slog.Logger

	kind   Kind
	active backend.Backend
	ext    string
	mime   string

	image      *imageengine.Engine
	transcoder *transcode.Engine
	gif        *gifengine.Engine
}

// Request returns the request parameters shared with the backends.
func (e *Engine) Request() *request.Params { return e.req }

// Kind returns the selected backend kind, or "" before Load.
func (e *Engine) Kind() Kind { return e.kind }

// Backend returns the selected backend, or nil before Load.
func (e *Engine) Backend() backend.Backend { return e.active }

// Extension returns the extension the active backend was loaded with. It is
// ".png" after a still frame was extracted.
func (e *Engine) Extension() string { return e.ext }

// MIME returns the sniffed type of the original source.
func (e *Engine) MIME() string { return e.mime }

func (e *Engine) imageEngine() *imageengine.Engine {
	if e.image == nil {
		e.image = imageengine.New(e.factory.cfg.Image, e.req, e.factory.logger)
	}
	return e.image
}

func (e *Engine) gifEngine() *gifengine.Engine {
	if e.gif == nil {
		cfg := e.factory.cfg.Gifsicle
		cfg.Path = e.factory.bins.Gifsicle
		e.gif = gifengine.New(cfg, e.factory.runner, e.factory.logger)
	}
	return e.gif
}

func (e *Engine) transcodeEngine() (*transcode.Engine, error) {
	if e.transcoder != nil {
		return e.transcoder, nil
	}
	f := e.factory
	opts := []transcode.Option{
		transcode.WithRunner(f.runner),
		transcode.WithBinaries(f.bins),
		transcode.WithScratch(f.scratch),
		transcode.WithSniffer(f.sniffer),
		transcode.WithLogger(f.logger),
	}
	if f.cfg.FFmpeg.UseGifsicleEngine {
		opts = append(opts, transcode.WithGIFBackend(e.gifEngine()))
	}
	t, err := transcode.New(f.cfg.FFmpeg, e.req, opts...)
	if err != nil {
		return nil, err
	}
	e.transcoder = t
	return t, nil
}

func (e *Engine) backendFor(kind Kind) (backend.Backend, error) {
	switch kind {
	case KindTranscoder:
		return e.transcodeEngine()
	case KindGIF:
		return e.gifEngine(), nil
	default:
		return e.imageEngine(), nil
	}
}

// Load selects a backend for buf and loads it. A requested still frame is
// extracted by the transcoder and handed to the image engine as a PNG.
func (e *Engine) Load(ctx context.Context, buf []byte, ext string) error {
	e.mime = e.factory.sniffer.MIME(buf)
	sel := Select(e.factory.cfg.FFmpeg, ext, e.mime, sniff.IsAnimated(buf, ext), e.req)

	if sel.Negotiable {
		e.req.ShouldVary = true
	}
	if sel.AutoFormat != "" {
		e.req.Format = sel.AutoFormat
	}

	e.logger.DebugContext(ctx, "selected backend",
		slog.String("backend", string(sel.Kind)),
		slog.String("extension", ext),
		slog.String("mime", e.mime),
		slog.String("auto_format", sel.AutoFormat),
	)

	kind := sel.Kind
	if kind == KindTranscoder && e.req.StillPosition != "" {
		still, err := e.extractStill(ctx, buf, ext)
		if err != nil {
			return err
		}
		buf, ext, kind = still, ".png", KindImage
		if e.req.Format == "" {
			e.req.Format = "jpg"
		}
	}

	b, err := e.backendFor(kind)
	if err != nil {
		return err
	}
	if err := b.Load(ctx, buf, ext); err != nil {
		return err
	}

	e.kind = kind
	e.active = b
	e.ext = ext
	return nil
}

func (e *Engine) extractStill(ctx context.Context, buf []byte, ext string) ([]byte, error) {
	t, err := e.transcodeEngine()
	if err != nil {
		return nil, err
	}
	if err := t.Load(ctx, buf, ext); err != nil {
		return nil, err
	}
	still, err := t.Still(ctx, e.req.StillPosition)
	if err != nil {
		return nil, fmt.Errorf("extracting still at %s: %w", e.req.StillPosition, err)
	}
	e.logger.DebugContext(ctx, "extracted still frame", slog.String("position", e.req.StillPosition))
	return still, nil
}

// Read renders the output of the active backend.
func (e *Engine) Read(ctx context.Context, ext string, quality *int) ([]byte, error) {
	if e.active == nil {
		return nil, notLoaded("read")
	}
	return e.active.Read(ctx, ext, quality)
}

// IsMultiple always reports false: animated sources are handled as one
// media item.
func (e *Engine) IsMultiple() bool { return false }

// Cleanup releases every backend created for the request.
func (e *Engine) Cleanup() {
	if e.image != nil {
		e.image.Cleanup()
	}
	if e.transcoder != nil {
		e.transcoder.Cleanup()
	}
	if e.gif != nil {
		e.gif.Cleanup()
	}
}

// Size returns the output size of the active backend.
func (e *Engine) Size() (transform.Size, error) {
	if e.active == nil {
		return transform.Size{}, notLoaded("size")
	}
	return e.active.Size(), nil
}

func (e *Engine) forward(op string, fn func(b backend.Backend)) error {
	if e.active == nil {
		return notLoaded(op)
	}
	fn(e.active)
	return nil
}

func (e *Engine) Resize(width, height int) error {
	return e.forward("resize", func(b backend.Backend) { b.Resize(width, height) })
}

func (e *Engine) Crop(left, top, right, bottom int) error {
	return e.forward("crop", func(b backend.Backend) { b.Crop(left, top, right, bottom) })
}

func (e *Engine) Rotate(degrees int) error {
	return e.forward("rotate", func(b backend.Backend) { b.Rotate(degrees) })
}

func (e *Engine) FlipVertically() error {
	return e.forward("flip_vertically", backend.Backend.FlipVertically)
}

func (e *Engine) FlipHorizontally() error {
	return e.forward("flip_horizontally", backend.Backend.FlipHorizontally)
}

func (e *Engine) ConvertToGrayscale() error {
	return e.forward("convert_to_grayscale", backend.Backend.ConvertToGrayscale)
}

func (e *Engine) Reorientate() error {
	return e.forward("reorientate", backend.Backend.Reorientate)
}

// Apply replays a parsed operation list on the active backend.
func (e *Engine) Apply(ops []transform.Operation) error {
	if e.active == nil {
		return notLoaded("apply")
	}
	return backend.Replay(e.active, ops)
}
