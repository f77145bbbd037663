package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/mediaxcode/internal/engine"
	"github.com/jmylchreest/mediaxcode/internal/sniff"
)

// ProbeHandler reports metadata of uploaded media.
type ProbeHandler struct {
	factory *engine.Factory
	maxBody int64
}

// NewProbeHandler creates a probe handler.
func NewProbeHandler(factory *engine.Factory, maxBody int64) *ProbeHandler {
	return &ProbeHandler{factory: factory, maxBody: maxBody}
}

// ProbeInput is the input for POST /api/v1/probe.
type ProbeInput struct {
	Ext     string `query:"ext" required:"true" doc:"Source file extension" example:".mp4"`
	RawBody []byte `contentType:"application/octet-stream"`
}

// ProbeOutput is the output for POST /api/v1/probe.
type ProbeOutput struct {
	Body ProbeResponse
}

// ProbeResponse describes a media source.
type ProbeResponse struct {
	MIME            string         `json:"mime"`
	Animated        bool           `json:"animated"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	DurationSeconds float64        `json:"duration_seconds"`
	FPS             float64        `json:"fps"`
	Metadata        map[string]any `json:"metadata"`
}

// Register registers the probe routes with the API.
func (h *ProbeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:  "probe",
		Method:       "POST",
		Path:         "/api/v1/probe",
		Summary:      "Probe media",
		Description:  "Returns ffprobe metadata of the uploaded media",
		Tags:         []string{"Media"},
		MaxBodyBytes: h.maxBody,
	}, h.Probe)
}

// Probe runs ffprobe on the uploaded media.
func (h *ProbeHandler) Probe(ctx context.Context, input *ProbeInput) (*ProbeOutput, error) {
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("request body is empty")
	}
	ext := normalizeExt(input.Ext)

	md, err := h.factory.Prober().Probe(ctx, input.RawBody, ext)
	if err != nil {
		return nil, mediaError(ctx, "probe", err)
	}

	return &ProbeOutput{
		Body: ProbeResponse{
			MIME:            h.factory.Sniffer().MIME(input.RawBody),
			Animated:        sniff.IsAnimated(input.RawBody, ext),
			Width:           md.Width,
			Height:          md.Height,
			DurationSeconds: md.Duration.Seconds(),
			FPS:             md.FPS,
			Metadata:        md.Raw,
		},
	}, nil
}
