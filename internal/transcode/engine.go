package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/gif"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/mediaxcode/internal/backend"
	"github.com/jmylchreest/mediaxcode/internal/config"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/jmylchreest/mediaxcode/internal/observability"
	"github.com/jmylchreest/mediaxcode/internal/request"
	"github.com/jmylchreest/mediaxcode/internal/sniff"
	"github.com/jmylchreest/mediaxcode/internal/storage"
	"github.com/jmylchreest/mediaxcode/internal/transform"
	"github.com/jmylchreest/mediaxcode/internal/webpanim"
	"github.com/jmylchreest/mediaxcode/pkg/format"
)

// ErrNoSource is returned by Read and Still before a successful Load.
var ErrNoSource = errors.New("transcode: no source loaded")

// GIFBackend post-processes GIF output. Operations are replayed onto it and
// AppendArgs adds raw tool arguments.
type GIFBackend interface {
	backend.Backend
	AppendArgs(args ...string)
}

// Engine is the ffmpeg backend for a single request.
//
// It is not safe for concurrent use.
type Engine struct {
	cfg     config.FFmpegConfig
	req     *request.Params
	bins    ffmpeg.Binaries
	runner  ffmpeg.Runner
	prober  *ffmpeg.Prober
	scratch *storage.Scratch
	sniffer *sniff.Sniffer
	gif     GIFBackend
	logger  *slog.Logger

	buf         []byte
	ext         string
	mime        string
	anim        *webpanim.Animation
	transparent bool
	desc        *transform.Descriptor
}

var _ backend.Backend = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithRunner sets the process runner.
func WithRunner(r ffmpeg.Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithBinaries overrides the tool paths taken from config.
func WithBinaries(b ffmpeg.Binaries) Option {
	return func(e *Engine) { e.bins = b }
}

// WithProber sets the metadata prober.
func WithProber(p *ffmpeg.Prober) Option {
	return func(e *Engine) { e.prober = p }
}

// WithScratch sets the scratch area for staged inputs and outputs.
func WithScratch(s *storage.Scratch) Option {
	return func(e *Engine) { e.scratch = s }
}

// WithSniffer sets the MIME detector.
func WithSniffer(s *sniff.Sniffer) Option {
	return func(e *Engine) { e.sniffer = s }
}

// WithGIFBackend sets the backend that GIF output is handed to when
// ffmpeg.use_gifsicle_engine is enabled.
func WithGIFBackend(b GIFBackend) Option {
	return func(e *Engine) { e.gif = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. req may be nil for requests without overrides.
func New(cfg config.FFmpegConfig, req *request.Params, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg: cfg,
		req: req,
		bins: ffmpeg.Binaries{
			FFmpeg:  defaultString(cfg.FFmpegPath, "ffmpeg"),
			FFprobe: defaultString(cfg.FFprobePath, "ffprobe"),
		},
		desc: transform.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = observability.WithComponent(e.logger, "transcode")
	if e.req == nil {
		e.req = &request.Params{}
	}
	if e.runner == nil {
		e.runner = ffmpeg.NewExecRunner(e.logger)
	}
	if e.sniffer == nil {
		e.sniffer = sniff.Default()
	}
	if e.scratch == nil {
		s, err := storage.NewScratch("")
		if err != nil {
			return nil, err
		}
		e.scratch = s
	}
	if e.prober == nil {
		e.prober = ffmpeg.NewProber(e.bins.FFprobe, e.scratch.Root(), e.runner)
	}
	return e, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Load replaces the source, resets all operations and probes the new source.
func (e *Engine) Load(ctx context.Context, buf []byte, ext string) error {
	e.buf = nil
	e.ext = ext
	e.mime = e.sniffer.MIME(buf)
	e.anim = nil
	e.transparent = false
	e.desc = transform.New()

	if err := e.probe(ctx, buf); err != nil {
		return err
	}
	e.buf = buf

	o := e.desc.OriginalSize()
	e.logger.DebugContext(ctx, "source loaded",
		slog.String("mime", e.mime),
		slog.String("size", format.Bytes(int64(len(buf)))),
		slog.String("dimensions", format.Dimensions(o.Width, o.Height)),
		slog.Duration("duration", e.desc.Duration()),
	)
	return nil
}

// probe seeds the descriptor. WebP and GIF are read in-process since
// ffprobe cannot demux animated WebP.
func (e *Engine) probe(ctx context.Context, buf []byte) error {
	switch e.mime {
	case "image/webp":
		limit := e.cfg.WebP.MaxPixels
		if limit == 0 {
			limit = webpanim.DefaultMaxPixels
		}
		anim, err := webpanim.ParseLimit(buf, limit)
		if err != nil {
			return &ffmpeg.ProbeError{Message: "invalid webp source", Err: err}
		}
		e.anim = anim
		e.desc.SetOriginalSize(anim.Width, anim.Height)
		e.desc.SetDuration(anim.TotalDuration())
		if e.transparent, err = anim.HasTransparency(); err != nil {
			return &ffmpeg.ProbeError{Message: "invalid webp source", Err: err}
		}
		return nil

	case "image/gif":
		g, err := gif.DecodeAll(bytes.NewReader(buf))
		if err != nil {
			return &ffmpeg.ProbeError{Message: "invalid gif source", Err: err}
		}
		w, h := g.Config.Width, g.Config.Height
		if (w == 0 || h == 0) && len(g.Image) > 0 {
			w, h = g.Image[0].Bounds().Dx(), g.Image[0].Bounds().Dy()
		}
		var total time.Duration
		for _, delay := range g.Delay {
			total += time.Duration(delay) * 10 * time.Millisecond
		}
		e.desc.SetOriginalSize(w, h)
		e.desc.SetDuration(total)
		e.transparent = len(g.Image) > 0 && !g.Image[0].Opaque()
		return nil
	}

	md, err := e.prober.Probe(ctx, buf, e.ext)
	if err != nil {
		return err
	}
	e.desc.SetOriginalSize(md.Width, md.Height)
	e.desc.SetDuration(md.Duration)
	return nil
}

// MIME returns the sniffed type of the loaded source.
func (e *Engine) MIME() string { return e.mime }

// Descriptor exposes the geometry state.
func (e *Engine) Descriptor() *transform.Descriptor { return e.desc }

// Operations returns the operation log.
func (e *Engine) Operations() []transform.Operation { return e.desc.Operations() }

// Size returns the current output size.
func (e *Engine) Size() transform.Size { return e.desc.Size() }

func (e *Engine) Resize(width, height int) { e.desc.Resize(width, height) }
func (e *Engine) Crop(left, top, right, bottom int) { e.desc.Crop(left, top, right, bottom) }
func (e *Engine) Rotate(degrees int) { e.desc.Rotate(degrees) }
func (e *Engine) FlipVertically() { e.desc.FlipVertically() }
func (e *Engine) FlipHorizontally() { e.desc.FlipHorizontally() }
func (e *Engine) ConvertToGrayscale() { e.desc.ConvertToGrayscale() }

// Reorientate is a no-op: video containers carry no EXIF orientation.
func (e *Engine) Reorientate() {}

// IsMultiple always reports false.
func (e *Engine) IsMultiple() bool { return false }

// Cleanup releases the source and the GIF backend.
func (e *Engine) Cleanup() {
	e.buf = nil
	e.anim = nil
	if e.gif != nil {
		e.gif.Cleanup()
	}
}

// Read returns the source unchanged when quality is nil and otherwise
// transcodes it to the requested format.
func (e *Engine) Read(ctx context.Context, ext string, quality *int) ([]byte, error) {
	if e.buf == nil {
		return nil, ErrNoSource
	}
	if quality == nil {
		return e.buf, nil
	}
	return e.transcode(ctx, ext)
}

// OutputFormat resolves the output format for ext. A request format wins;
// hevc, h264 and h265 rewrite the request format to mp4.
func (e *Engine) OutputFormat(ext string) (string, error) {
	if f := e.req.Format; f != "" {
		switch f {
		case "hevc", "h264", "h265":
			e.req.Format = "mp4"
		}
		return f, nil
	}
	if f, ok := ExtensionFormats[strings.ToLower(ext)]; ok {
		return f, nil
	}
	return "", &InvalidFormatError{Format: strings.TrimPrefix(ext, ".")}
}

func (e *Engine) transcode(ctx context.Context, ext string) (_ []byte, err error) {
	outFormat, err := e.OutputFormat(ext)
	if err != nil {
		return nil, err
	}
	codec, err := CodecFor(outFormat)
	if err != nil {
		return nil, err
	}

	defer observability.TimedOperationWithError(ctx, e.logger, "transcode "+string(codec), &err)()

	src, err := e.stage()
	if err != nil {
		return nil, err
	}
	defer src.cleanup()

	overrides := Overrides{Lossless: e.req.Lossless, Tune: e.req.Tune}

	switch codec {
	case CodecWebP:
		args := WebPArgs(e.cfg.WebP, e.desc.Filters(), overrides, e.transparent)
		return e.runFFmpeg(ctx, src, containers[codec], args, false)
	case CodecVP9:
		args := VP9Args(e.cfg.VP9, e.desc.Filters(), overrides)
		return e.runFFmpeg(ctx, src, containers[codec], args, e.cfg.VP9.TwoPass)
	case CodecH264:
		e.ensureEven(ctx)
		args := H264Args(e.cfg.H264, e.desc.Filters(), overrides)
		return e.runFFmpeg(ctx, src, containers[codec], args, e.cfg.H264.TwoPass)
	case CodecH265:
		e.ensureEven(ctx)
		args := H265Args(e.cfg.H265, e.desc.Filters(), overrides)
		return e.runFFmpeg(ctx, src, containers[codec], args, e.cfg.H265.TwoPass)
	default:
		return e.transcodeGIF(ctx, src)
	}
}

// ensureEven rounds odd output dimensions down, as yuv420p requires.
func (e *Engine) ensureEven(ctx context.Context) {
	before := e.desc.Size()
	if e.desc.EnsureEvenSize() {
		e.logger.DebugContext(ctx, "rounded output to even dimensions",
			slog.String("from", before.String()),
			slog.String("to", e.desc.Size().String()),
		)
	}
}

// Still extracts the frame at pos as a PNG.
func (e *Engine) Still(ctx context.Context, pos string) ([]byte, error) {
	if e.buf == nil {
		return nil, ErrNoSource
	}
	src, err := e.stage()
	if err != nil {
		return nil, err
	}
	defer src.cleanup()

	args := &Args{}
	args.Set("-ss", pos).Set("-frames:v", "1")
	return e.runFFmpeg(ctx, src, "png", args, false)
}

func (e *Engine) stage() (*source, error) {
	if e.mime == "image/webp" && e.anim != nil {
		return stageWebP(e.scratch, e.anim)
	}
	return stageFile(e.scratch, e.buf, e.ext)
}

// runFFmpeg encodes src into a scratch file with the given container suffix
// and returns its contents.
func (e *Engine) runFFmpeg(ctx context.Context, src *source, container string, args *Args, twoPass bool) ([]byte, error) {
	if src.frameRate != "" {
		args.Set("-r", src.frameRate)
	}

	out, removeOut := e.scratch.Path("." + container)
	defer removeOut()

	build := func(flags []string, target string) *ffmpeg.Command {
		return ffmpeg.NewCommandBuilder(e.bins.FFmpeg).
			InputArgs(src.inputFlags...).
			Input(src.path).
			OutputArgs(flags...).
			Overwrite().
			Output(target).
			Build()
	}

	if !twoPass {
		if _, err := e.run(ctx, build(args.Strings(), out)); err != nil {
			return nil, err
		}
	} else {
		logPath, removeLog := e.scratch.Path(".log")
		defer removeLog()

		if _, err := e.run(ctx, build(args.Render(1, logPath), os.DevNull)); err != nil {
			return nil, err
		}
		if _, err := e.run(ctx, build(args.Render(2, logPath), out)); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading ffmpeg output: %w", err)
	}
	return data, nil
}

// transcodeGIF renders a palette and applies it, writing the GIF to stdout.
// With the gifsicle hand-off, ffmpeg only converts at the original size and
// the operations are replayed onto the GIF backend.
func (e *Engine) transcodeGIF(ctx context.Context, src *source) ([]byte, error) {
	handOff := e.cfg.UseGifsicleEngine
	if handOff && e.gif == nil {
		return nil, errors.New("transcode: gifsicle engine enabled but no GIF backend configured")
	}

	filter := e.desc.FilterGraph()
	if handOff || filter == "" {
		o := e.desc.OriginalSize()
		filter = fmt.Sprintf("scale=%d:%d:flags=lanczos", o.Width, o.Height)
	}

	// Palette passes read the manifest timing as is, without a forced rate.
	var inputFlags []string
	if src.concat {
		inputFlags = concatFlags
	}

	palette, removePalette := e.scratch.Path(".png")
	defer removePalette()

	paletteGen := ffmpeg.NewCommandBuilder(e.bins.FFmpeg).
		InputArgs(inputFlags...).
		Input(src.path).
		OutputArgs("-lavfi", filter+",palettegen").
		Overwrite().
		Output(palette).
		Build()
	if _, err := e.run(ctx, paletteGen); err != nil {
		return nil, err
	}

	paletteUse := ffmpeg.NewCommandBuilder(e.bins.FFmpeg).
		InputArgs(inputFlags...).
		Input(src.path).
		Input(palette).
		OutputArgs("-lavfi", filter+"[x];[x][1:v]paletteuse", "-f", "gif").
		Output("-").
		Build()
	out, err := e.run(ctx, paletteUse)
	if err != nil {
		return nil, err
	}
	if !handOff {
		return out, nil
	}

	if err := e.gif.Load(ctx, out, ".gif"); err != nil {
		return nil, err
	}
	e.gif.AppendArgs("-O3")
	if err := backend.Replay(e.gif, e.desc.Operations()); err != nil {
		return nil, err
	}
	return e.gif.Read(ctx, ".gif", nil)
}

// run executes cmd and attaches the request URL to process failures.
func (e *Engine) run(ctx context.Context, cmd *ffmpeg.Command) ([]byte, error) {
	out, err := e.runner.Run(ctx, cmd)
	if err != nil {
		var te *ffmpeg.TranscodeError
		if errors.As(err, &te) {
			te.URL = e.req.URL
		}
		observability.WithError(e.logger, err).ErrorContext(ctx, "ffmpeg failed",
			slog.String("url", e.req.URL),
		)
		return nil, err
	}
	return out, nil
}
