package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata is the subset of probe output that seeds the operation pipeline.
type Metadata struct {
	Width    int
	Height   int
	Duration time.Duration
	FPS      float64
	// Raw holds the flattened format and first video stream keys.
	Raw map[string]any
}

// Prober runs ffprobe against in-memory buffers.
type Prober struct {
	ffprobePath string
	tempDir     string
	runner      Runner
}

// NewProber creates a prober. An empty ffprobePath makes every probe fail
// with a ProbeError. Buffers are staged as files under tempDir ("" for the
// OS default).
func NewProber(ffprobePath, tempDir string, runner Runner) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
		runner:      runner,
	}
}

// Probe writes buf to a temporary file named with ext and reads its metadata.
func (p *Prober) Probe(ctx context.Context, buf []byte, ext string) (*Metadata, error) {
	if p.ffprobePath == "" {
		return nil, &ProbeError{Message: msgProbeMissing}
	}

	f, err := os.CreateTemp(p.tempDir, "mediaxcode-probe-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("creating probe input: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing probe input: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing probe input: %w", err)
	}

	return p.ProbeFile(ctx, f.Name())
}

// ProbeFile reads metadata of a file on disk.
func (p *Prober) ProbeFile(ctx context.Context, path string) (*Metadata, error) {
	if p.ffprobePath == "" {
		return nil, &ProbeError{Message: msgProbeMissing}
	}

	cmd := &Command{
		Binary: p.ffprobePath,
		Args: []string{
			"-hide_banner", "-loglevel", "fatal",
			"-show_error", "-show_format", "-show_streams",
			"-print_format", "json",
			"-i", path,
		},
	}

	out, runErr := p.runner.Run(ctx, cmd)
	if runErr != nil && isNotFound(runErr) {
		return nil, &ProbeError{Message: msgProbeMissing, Err: runErr}
	}

	var data map[string]any
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, &ProbeError{Message: msgProbeInvalidData, Err: errors.Join(err, runErr)}
	}

	if e, ok := data["error"].(map[string]any); ok {
		return nil, &ProbeError{
			Message: fmt.Sprintf("%v (%v)", e["string"], jsonNumber(e["code"])),
			Err:     runErr,
		}
	}
	if runErr != nil {
		return nil, &ProbeError{Message: msgProbeInvalidData, Err: runErr}
	}

	format, fok := data["format"].(map[string]any)
	streams, sok := data["streams"].([]any)
	if !fok || !sok {
		return nil, &ProbeError{Message: msgProbeInvalidData}
	}

	var video map[string]any
	for _, s := range streams {
		if stream, ok := s.(map[string]any); ok && stream["codec_type"] == "video" {
			video = stream
			break
		}
	}
	if video == nil {
		return nil, &ProbeError{Message: msgProbeNoVideo}
	}

	return newMetadata(Flatten(format, video)), nil
}

// Flatten merges the format keys with the video stream keys. Stream keys that
// collide with a format key are prefixed with "stream_".
func Flatten(format, stream map[string]any) map[string]any {
	out := make(map[string]any, len(format)+len(stream))
	for k, v := range format {
		out[k] = v
	}
	for k, v := range stream {
		if _, exists := format[k]; exists {
			out["stream_"+k] = v
			continue
		}
		out[k] = v
	}
	return out
}

func newMetadata(raw map[string]any) *Metadata {
	md := &Metadata{
		Width:  intValue(raw["width"]),
		Height: intValue(raw["height"]),
		Raw:    raw,
	}

	for _, key := range []string{"duration", "stream_duration"} {
		if s, ok := raw[key].(string); ok {
			if d, err := ParseSeconds(s); err == nil {
				md.Duration = d
				break
			}
		}
	}

	for _, key := range []string{"avg_frame_rate", "r_frame_rate"} {
		if s, ok := raw[key].(string); ok {
			if fps := parseFramerate(s); fps > 0 {
				md.FPS = fps
				break
			}
		}
	}

	return md
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

func jsonNumber(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	num, den, found := strings.Cut(fr, "/")
	if !found {
		f, _ := strconv.ParseFloat(fr, 64)
		return f
	}

	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// ParseSeconds converts a decimal seconds string such as "2.500000" into a
// duration without going through floating point. Digits beyond nanosecond
// precision are truncated.
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid seconds value %q", s)
	}
	if whole == "" {
		whole = "0"
	}

	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds value %q: %w", s, err)
	}

	if len(frac) > 9 {
		frac = frac[:9]
	}
	var nanos int64
	if frac != "" {
		nanos, err = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds value %q: %w", s, err)
		}
	}

	d := time.Duration(secs)*time.Second + time.Duration(nanos)
	if neg {
		d = -d
	}
	return d, nil
}

// FormatSeconds renders d as decimal seconds with no trailing zeros,
// e.g. 1500ms => "1.5", 2s => "2", 0 => "0".
func FormatSeconds(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	secs := int64(d / time.Second)
	nanos := int64(d % time.Second)
	if nanos == 0 {
		return sign + strconv.FormatInt(secs, 10)
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", nanos), "0")
	return fmt.Sprintf("%s%d.%s", sign, secs, frac)
}
