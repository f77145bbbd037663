package handlers

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/mediaxcode/internal/engine"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/jmylchreest/mediaxcode/internal/imageengine"
	"github.com/jmylchreest/mediaxcode/internal/observability"
	"github.com/jmylchreest/mediaxcode/internal/request"
	"github.com/jmylchreest/mediaxcode/internal/transcode"
	"github.com/jmylchreest/mediaxcode/internal/transform"
)

// BackendHeader names the backend that produced a response.
const BackendHeader = "X-Mediaxcode-Backend"

// TranscodeHandler handles media transcoding.
type TranscodeHandler struct {
	factory *engine.Factory
	maxBody int64
}

// NewTranscodeHandler creates a transcode handler. Uploads larger than
// maxBody bytes are rejected; zero keeps the API default.
func NewTranscodeHandler(factory *engine.Factory, maxBody int64) *TranscodeHandler {
	return &TranscodeHandler{factory: factory, maxBody: maxBody}
}

// TranscodeInput is the input for POST /api/v1/transcode.
type TranscodeInput struct {
	Ext       string `query:"ext" required:"true" doc:"Source file extension" example:".gif"`
	Output    string `query:"output" doc:"Output extension, defaults to the source extension" example:".mp4"`
	Filters   string `query:"filters" doc:"Filter string" example:"format(webm):still(00:00:01.5)"`
	Resize    string `query:"resize" doc:"Output size as WxH" example:"320x240"`
	Crop      string `query:"crop" doc:"Crop box as left,top,right,bottom" example:"0,0,640,360"`
	Rotate    int    `query:"rotate" enum:"0,90,180,270" default:"0" doc:"Clockwise rotation in degrees"`
	FlipH     bool   `query:"flip_h" doc:"Mirror horizontally"`
	FlipV     bool   `query:"flip_v" doc:"Mirror vertically"`
	Grayscale bool   `query:"grayscale" doc:"Convert to grayscale"`
	Quality   int    `query:"quality" minimum:"0" maximum:"100" doc:"Encoder quality, 0 uses the configured default"`
	Accept    string `header:"Accept"`
	RawBody   []byte `contentType:"application/octet-stream"`
}

// TranscodeOutput is the rendered media.
type TranscodeOutput struct {
	ContentType string `header:"Content-Type"`
	Vary        string `header:"Vary"`
	Backend     string `header:"X-Mediaxcode-Backend"`
	Body        []byte
}

// Register registers the transcode routes with the API.
func (h *TranscodeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:  "transcode",
		Method:       "POST",
		Path:         "/api/v1/transcode",
		Summary:      "Transcode media",
		Description:  "Applies geometric operations to the uploaded media and renders it in the requested format",
		Tags:         []string{"Media"},
		MaxBodyBytes: h.maxBody,
	}, h.Transcode)
}

// Transcode renders the uploaded media.
func (h *TranscodeHandler) Transcode(ctx context.Context, input *TranscodeInput) (*TranscodeOutput, error) {
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("request body is empty")
	}

	plan, err := transform.ParsePlan(input.Resize, input.Crop, input.Rotate, input.FlipH, input.FlipV, input.Grayscale)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid operation", err)
	}

	req := &request.Params{URL: "upload" + normalizeExt(input.Ext)}
	req.ApplyAccept(input.Accept)
	if ignored := req.ApplyFilters(input.Filters); len(ignored) > 0 {
		observability.LoggerFromContext(ctx).DebugContext(ctx, "ignored filters",
			slog.Any("filters", ignored),
		)
	}

	quality := input.Quality
	if quality == 0 {
		quality = h.factory.Config().Image.DefaultQuality
	}

	res, err := h.factory.Process(ctx, engine.Job{
		Source:    input.RawBody,
		Ext:       normalizeExt(input.Ext),
		OutputExt: normalizeExt(input.Output),
		Plan:      plan,
		Quality:   &quality,
		Request:   req,
	})
	if err != nil {
		return nil, mediaError(ctx, "transcode", err)
	}

	out := &TranscodeOutput{
		ContentType: res.MIME,
		Backend:     string(res.Kind),
		Body:        res.Data,
	}
	if res.Vary {
		out.Vary = "Accept"
	}
	return out, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// mediaError maps engine failures to API errors. Tool output stays in the
// log and is never returned to the client.
func mediaError(ctx context.Context, op string, err error) error {
	logger := observability.LoggerFromContext(ctx)

	var (
		invalidFormat *transcode.InvalidFormatError
		unsupported   *imageengine.UnsupportedFormatError
		sourceErr     *engine.SourceError
		probeErr      *ffmpeg.ProbeError
		transcodeErr  *ffmpeg.TranscodeError
	)
	switch {
	case errors.As(err, &invalidFormat):
		return huma.Error400BadRequest(invalidFormat.Error())
	case errors.As(err, &unsupported):
		return huma.Error400BadRequest("unsupported output format " + unsupported.Format)
	// A failed ffprobe is a bad source; any other tool exit is a server
	// error, even while loading (still extraction).
	case errors.As(err, &probeErr):
		return unreadableSource(ctx, logger, op, err)
	case errors.As(err, &transcodeErr):
		logger.ErrorContext(ctx, "external tool failed",
			slog.String("operation", op),
			slog.Int("exit_code", transcodeErr.ExitCode),
			slog.String("command", strings.Join(transcodeErr.Command, " ")),
			slog.String("stderr", transcodeErr.Stderr),
		)
		return huma.Error500InternalServerError("transcoding failed")
	case errors.As(err, &sourceErr), errors.Is(err, image.ErrFormat):
		return unreadableSource(ctx, logger, op, err)
	default:
		logger.ErrorContext(ctx, "media operation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return huma.Error500InternalServerError("media operation failed")
	}
}

func unreadableSource(ctx context.Context, logger *slog.Logger, op string, err error) error {
	logger.WarnContext(ctx, "unreadable source",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return huma.Error422UnprocessableEntity("unable to read source media")
}
