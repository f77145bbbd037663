package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/mediaxcode/internal/observability"
	"github.com/jmylchreest/mediaxcode/internal/request"
	"github.com/jmylchreest/mediaxcode/internal/transform"
	"github.com/jmylchreest/mediaxcode/pkg/format"
)

// Job is one complete transcode request.
type Job struct {
	Source []byte
	// Ext is the source extension including the dot.
	Ext string
	// OutputExt selects the output when no format override applies.
	// Empty means Ext.
	OutputExt string
	Plan      transform.Plan
	// Quality is passed to Read. Nil returns unmodified sources untouched.
	Quality *int
	Request *request.Params
}

// Result is the rendered output of a Job.
type Result struct {
	Data []byte
	MIME string
	Kind Kind
	Size transform.Size
	// Vary reports that the output depended on the Accept header.
	Vary bool
}

// Process loads the job source, applies its plan and renders the output.
// All scratch state is released before it returns.
func (f *Factory) Process(ctx context.Context, job Job) (*Result, error) {
	e := f.New(job.Request)
	defer e.Cleanup()

	if err := e.Load(ctx, job.Source, job.Ext); err != nil {
		return nil, &SourceError{Ext: job.Ext, Err: err}
	}
	if err := e.Reorientate(); err != nil {
		return nil, err
	}
	if err := e.Apply(job.Plan.Operations()); err != nil {
		return nil, fmt.Errorf("applying operations: %w", err)
	}

	outExt := job.OutputExt
	if outExt == "" {
		outExt = job.Ext
	}
	data, err := e.Read(ctx, outExt, job.Quality)
	if err != nil {
		return nil, err
	}

	// Read may adjust geometry, e.g. even dimensions for yuv420p codecs.
	size, err := e.Size()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Data: data,
		MIME: f.sniffer.MIME(data),
		Kind: e.Kind(),
		Size: size,
		Vary: e.Request().Vary(),
	}
	observability.WithOperation(e.logger, "process").DebugContext(ctx, "processed media",
		slog.String("backend", string(res.Kind)),
		slog.String("input", format.Bytes(int64(len(job.Source)))),
		slog.String("output", format.Bytes(int64(len(data)))),
		slog.String("size", format.Dimensions(size.Width, size.Height)),
		slog.String("mime", res.MIME),
	)
	return res, nil
}
