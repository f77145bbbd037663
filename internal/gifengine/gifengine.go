// Package gifengine is a GIF backend that applies operations with gifsicle.
package gifengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/gif"
	"log/slog"
	"strconv"

	"github.com/jmylchreest/mediaxcode/internal/backend"
	"github.com/jmylchreest/mediaxcode/internal/config"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/jmylchreest/mediaxcode/internal/observability"
	"github.com/jmylchreest/mediaxcode/internal/sniff"
	"github.com/jmylchreest/mediaxcode/internal/transform"
	"github.com/jmylchreest/mediaxcode/pkg/format"
)

// ErrNoSource is returned by Read before a successful Load.
var ErrNoSource = errors.New("gifengine: no source loaded")

// Engine collects gifsicle arguments and runs them once on Read.
type Engine struct {
	binary   string
	baseArgs []string
	runner   ffmpeg.Runner
	logger   *slog.Logger

	buf      []byte
	size     transform.Size
	animated bool
	args     []string
}

var _ backend.Backend = (*Engine)(nil)

// New creates an engine from the gifsicle config. A nil runner executes
// gifsicle locally.
func New(cfg config.GifsicleConfig, runner ffmpeg.Runner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "gifsicle")
	if runner == nil {
		runner = ffmpeg.NewExecRunner(logger)
	}
	binary := cfg.Path
	if binary == "" {
		binary = "gifsicle"
	}
	return &Engine{
		binary:   binary,
		baseArgs: append([]string{"--no-warnings"}, cfg.Args...),
		runner:   runner,
		logger:   logger,
	}
}

// Load replaces the source and clears pending arguments.
func (e *Engine) Load(_ context.Context, buf []byte, _ string) error {
	cfg, err := gif.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("gifengine: reading gif header: %w", err)
	}
	e.buf = buf
	e.size = transform.Size{Width: cfg.Width, Height: cfg.Height}
	e.animated = sniff.IsAnimatedGIF(buf)
	e.args = nil
	return nil
}

// Args returns the pending operation arguments.
func (e *Engine) Args() []string {
	return append([]string(nil), e.args...)
}

// AppendArgs adds raw gifsicle arguments.
func (e *Engine) AppendArgs(args ...string) {
	e.args = append(e.args, args...)
}

// Size returns the output size after the pending operations.
func (e *Engine) Size() transform.Size { return e.size }

// Resize scales to width x height. Gifsicle may add up to 64 intermediate
// colours so that small palettes shrink cleanly.
func (e *Engine) Resize(width, height int) {
	if width == 0 && height == 0 {
		return
	}
	e.AppendArgs("--resize", fmt.Sprintf("%dx%d", width, height), "--resize-colors", "64")
	e.size = transform.Size{Width: width, Height: height}
}

// Crop keeps the rectangle between (left,top) and (right,bottom).
func (e *Engine) Crop(left, top, right, bottom int) {
	e.AppendArgs("--crop", fmt.Sprintf("%d,%d-%d,%d", left, top, right, bottom))
	e.size = transform.Size{Width: right - left, Height: bottom - top}
}

// Rotate supports quarter turns only; other angles are ignored.
func (e *Engine) Rotate(degrees int) {
	switch degrees {
	case 90, 270:
		e.size = transform.Size{Width: e.size.Height, Height: e.size.Width}
	case 180:
	default:
		return
	}
	e.AppendArgs("--rotate-" + strconv.Itoa(degrees))
}

func (e *Engine) FlipVertically()   { e.AppendArgs("--flip-vertical") }
func (e *Engine) FlipHorizontally() { e.AppendArgs("--flip-horizontal") }

func (e *Engine) ConvertToGrayscale() { e.AppendArgs("--use-colormap", "gray") }

// Reorientate is a no-op: GIF has no orientation metadata.
func (e *Engine) Reorientate() {}

// IsMultiple reports whether the source has more than one frame.
func (e *Engine) IsMultiple() bool { return e.animated }

// Cleanup drops the source.
func (e *Engine) Cleanup() {
	e.buf = nil
	e.args = nil
}

// Read runs gifsicle with the pending arguments, feeding the source on
// stdin. Without pending arguments the source is returned as is.
func (e *Engine) Read(ctx context.Context, _ string, _ *int) ([]byte, error) {
	if e.buf == nil {
		return nil, ErrNoSource
	}
	if len(e.args) == 0 {
		return e.buf, nil
	}

	cmd := &ffmpeg.Command{
		Binary: e.binary,
		Args:   append(append([]string(nil), e.baseArgs...), e.args...),
		Stdin:  e.buf,
	}
	out, err := e.runner.Run(ctx, cmd)
	if err != nil {
		observability.WithError(e.logger, err).ErrorContext(ctx, "gifsicle failed")
		return nil, err
	}

	e.logger.DebugContext(ctx, "gifsicle finished",
		slog.String("input_size", format.Bytes(int64(len(e.buf)))),
		slog.String("output_size", format.Bytes(int64(len(out)))),
	)
	e.buf = out
	e.args = nil
	return out, nil
}
