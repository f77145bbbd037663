package transcode

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/mediaxcode/internal/config"
)

// Codec is an output encoder path.
type Codec string

// Supported codecs.
const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
	CodecVP9  Codec = "vp9"
	CodecWebP Codec = "webp"
	CodecGIF  Codec = "gif"
)

var formatCodecs = map[string]Codec{
	"webm": CodecVP9,
	"vp9":  CodecVP9,
	"mp4":  CodecH264,
	"h264": CodecH264,
	"hevc": CodecH265,
	"h265": CodecH265,
	"webp": CodecWebP,
	"gif":  CodecGIF,
}

// ExtensionFormats maps requested output extensions to formats when the
// request carries no explicit format.
var ExtensionFormats = map[string]string{
	".mp4":  "mp4",
	".webm": "webm",
	".gif":  "gif",
	".gifv": "mp4",
	".webp": "webp",
}

// containers maps codecs to the ffmpeg muxer and output file suffix.
var containers = map[Codec]string{
	CodecH264: "mp4",
	CodecH265: "mp4",
	CodecVP9:  "webm",
	CodecWebP: "webp",
	CodecGIF:  "gif",
}

// InvalidFormatError reports an output format with no codec path.
type InvalidFormatError struct {
	Format string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("Invalid video format '%s' requested", e.Format)
}

// CodecFor returns the codec that produces format.
func CodecFor(format string) (Codec, error) {
	if c, ok := formatCodecs[strings.ToLower(format)]; ok {
		return c, nil
	}
	return "", &InvalidFormatError{Format: format}
}

// Overrides are per-request encoder hints that take precedence over config.
type Overrides struct {
	Lossless *bool
	Tune     string
}

func (o Overrides) lossless(configured bool) bool {
	if o.Lossless != nil {
		return *o.Lossless
	}
	return configured
}

func (o Overrides) tune(configured string) string {
	if o.Tune != "" {
		return o.Tune
	}
	return configured
}

func withFilters(a *Args, filters []string, container string) {
	if len(filters) > 0 {
		a.Set("-vf", strings.Join(filters, ","))
	}
	a.Set("-f", container)
}

// H264Args builds libx264 options.
func H264Args(cfg config.H264Config, filters []string, o Overrides) *Args {
	a := &Args{}
	a.Set("-c:v", "libx264").Flag("-an").Set("-pix_fmt", "yuv420p").Set("-movflags", "faststart")
	withFilters(a, filters, "mp4")

	a.setIfTruthy("-tune", o.tune(cfg.Tune))
	a.setIf("-b:v", cfg.VBR)
	a.setIf("-crf", cfg.CRF)
	a.setIfTruthy("-level", cfg.Level)
	a.setIfTruthy("-profile:v", cfg.Profile)
	a.setIfTruthy("-preset", cfg.Preset)
	a.setIf("-bufsize", cfg.BufSize)
	a.setIfTruthy("-maxrate", cfg.MaxRate)
	a.setIfTruthy("-qmin", cfg.QMin)
	a.setIfTruthy("-qmax", cfg.QMax)
	return a
}

// H265Args builds HEVC options. Rate control limits go through -x265-params,
// which is always present so that two-pass keys have somewhere to go.
func H265Args(cfg config.H265Config, filters []string, o Overrides) *Args {
	a := &Args{}
	a.Set("-c:v", "hevc").Set("-tag:v", "hvc1").Flag("-an").Set("-pix_fmt", "yuv420p").Set("-movflags", "faststart")
	withFilters(a, filters, "mp4")

	a.setIfTruthy("-tune", o.tune(cfg.Tune))
	a.setIf("-b:v", cfg.VBR)
	a.setIf("-crf", cfg.CRF)
	a.setIfTruthy("-profile:v", cfg.Profile)
	a.setIfTruthy("-preset", cfg.Preset)

	var params []string
	if cfg.BufSize != "" {
		params = append(params, "vbv-bufsize="+cfg.BufSize)
	}
	if truthy(cfg.MaxRate) {
		params = append(params, "vbv-maxrate="+cfg.MaxRate)
	}
	if truthy(cfg.CRFMin) {
		params = append(params, "crf-min="+cfg.CRFMin)
	}
	if truthy(cfg.CRFMax) {
		params = append(params, "crf-max="+cfg.CRFMax)
	}
	a.Params("-x265-params", params)
	return a
}

// VP9Args builds libvpx-vp9 options.
func VP9Args(cfg config.VP9Config, filters []string, o Overrides) *Args {
	a := &Args{}
	a.Set("-c:v", "libvpx-vp9").Set("-loop", "0").Flag("-an").Set("-pix_fmt", "yuv420p").Set("-movflags", "faststart")
	withFilters(a, filters, "webm")

	a.setIf("-b:v", cfg.VBR)
	a.setIf("-crf", cfg.CRF)
	a.setIfTruthy("-deadline", cfg.Deadline)
	a.setIf("-cpu-used", cfg.CPUUsed)
	if cfg.RowMT {
		a.Set("-row-mt", "1")
	}
	if o.lossless(cfg.Lossless) {
		a.Set("-lossless", "1")
	}
	a.setIfTruthy("-maxrate", cfg.MaxRate)
	a.setIfTruthy("-minrate", cfg.MinRate)
	return a
}

// WebPArgs builds libwebp options. Lossless output and transparent sources
// keep an alpha channel.
func WebPArgs(cfg config.WebPConfig, filters []string, o Overrides, transparent bool) *Args {
	lossless := o.lossless(cfg.Lossless)
	pixFmt := "yuv420p"
	if lossless || transparent {
		pixFmt = "rgba"
	}

	a := &Args{}
	a.Set("-loop", "0").Flag("-an").Set("-pix_fmt", pixFmt).Set("-movflags", "faststart")
	withFilters(a, filters, "webp")

	if lossless {
		a.Set("-lossless", "1")
	}
	a.setIfTruthy("-preset", cfg.Preset)
	a.setIf("-compression_level", cfg.CompressionLevel)
	a.setIf("-qscale", cfg.QScale)
	return a
}
