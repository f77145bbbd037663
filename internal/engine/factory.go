package engine

import (
	"log/slog"

	"github.com/jmylchreest/mediaxcode/internal/config"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/jmylchreest/mediaxcode/internal/observability"
	"github.com/jmylchreest/mediaxcode/internal/request"
	"github.com/jmylchreest/mediaxcode/internal/sniff"
	"github.com/jmylchreest/mediaxcode/internal/storage"
)

// Factory holds the process-wide collaborators and creates one Engine per
// request. It is safe for concurrent use.
type Factory struct {
	cfg     *config.Config
	bins    ffmpeg.Binaries
	runner  ffmpeg.Runner
	scratch *storage.Scratch
	sniffer *sniff.Sniffer
	logger  *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRunner sets the runner used for ffmpeg, ffprobe and gifsicle.
func WithRunner(r ffmpeg.Runner) FactoryOption {
	return func(f *Factory) { f.runner = r }
}

// WithBinaries sets resolved tool paths.
func WithBinaries(b ffmpeg.Binaries) FactoryOption {
	return func(f *Factory) { f.bins = b }
}

// WithScratch sets the scratch area.
func WithScratch(s *storage.Scratch) FactoryOption {
	return func(f *Factory) { f.scratch = s }
}

// WithSniffer sets the MIME detector.
func WithSniffer(s *sniff.Sniffer) FactoryOption {
	return func(f *Factory) { f.sniffer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// NewFactory creates a factory. Tool paths default to the configured paths,
// falling back to the bare tool names.
func NewFactory(cfg *config.Config, opts ...FactoryOption) (*Factory, error) {
	f := &Factory{
		cfg: cfg,
		bins: ffmpeg.Binaries{
			FFmpeg:   orDefault(cfg.FFmpeg.FFmpegPath, "ffmpeg"),
			FFprobe:  orDefault(cfg.FFmpeg.FFprobePath, "ffprobe"),
			Gifsicle: orDefault(cfg.Gifsicle.Path, "gifsicle"),
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.runner == nil {
		f.runner = ffmpeg.NewExecRunner(f.logger)
	}
	if f.sniffer == nil {
		f.sniffer = sniff.Default()
	}
	if f.scratch == nil {
		s, err := storage.NewScratch(cfg.Storage.TempDir)
		if err != nil {
			return nil, err
		}
		f.scratch = s
	}
	return f, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Config returns the configuration the factory was built with.
func (f *Factory) Config() *config.Config { return f.cfg }

// Binaries returns the tool paths in use.
func (f *Factory) Binaries() ffmpeg.Binaries { return f.bins }

// Sniffer returns the MIME detector.
func (f *Factory) Sniffer() *sniff.Sniffer { return f.sniffer }

// Scratch returns the scratch area shared by every engine.
func (f *Factory) Scratch() *storage.Scratch { return f.scratch }

// Prober returns an ffprobe wrapper sharing the factory's runner and scratch.
func (f *Factory) Prober() *ffmpeg.Prober {
	return ffmpeg.NewProber(f.bins.FFprobe, f.scratch.Root(), f.runner)
}

// New creates an engine for one request. req may be nil.
func (f *Factory) New(req *request.Params) *Engine {
	if req == nil {
		req = &request.Params{}
	}
	return &Engine{factory: f, req: req, logger: observability.WithComponent(f.logger, "engine")}
}
