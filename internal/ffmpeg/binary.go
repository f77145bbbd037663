package ffmpeg

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/mediaxcode/internal/util"
)

// Environment variables consulted when no explicit path is configured.
const (
	EnvFFmpegBinary   = "MEDIAXCODE_FFMPEG_BINARY"
	EnvFFprobeBinary  = "MEDIAXCODE_FFPROBE_BINARY"
	EnvGifsicleBinary = "MEDIAXCODE_GIFSICLE_BINARY"
)

// Binaries holds resolved paths of the external tools. An empty path means
// the tool is unavailable.
type Binaries struct {
	FFmpeg   string
	FFprobe  string
	Gifsicle string
}

// ResolveBinaries locates ffmpeg, ffprobe and gifsicle. Explicit paths win over
// environment variables, ./name and PATH. Only ffmpeg is required; the
// returned error lists every tool that was not found.
func ResolveBinaries(ffmpegPath, ffprobePath, gifsiclePath string) (Binaries, error) {
	var (
		bins    Binaries
		missing []string
		err     error
	)

	if bins.FFmpeg, err = util.FindBinary(ffmpegPath, "ffmpeg", EnvFFmpegBinary); err != nil {
		missing = append(missing, err.Error())
	}
	if bins.FFprobe, err = util.FindBinary(ffprobePath, "ffprobe", EnvFFprobeBinary); err != nil {
		missing = append(missing, err.Error())
	}
	if bins.Gifsicle, err = util.FindBinary(gifsiclePath, "gifsicle", EnvGifsicleBinary); err != nil {
		missing = append(missing, err.Error())
	}

	if len(missing) > 0 {
		return bins, fmt.Errorf("resolving binaries: %s", strings.Join(missing, "; "))
	}
	return bins, nil
}

// Encoders that the codec paths rely on.
var RequiredEncoders = []string{"libx264", "libx265", "libvpx-vp9", "libwebp", "gif"}

// BinaryInfo describes an ffmpeg installation.
type BinaryInfo struct {
	FFmpegPath string   `json:"ffmpeg_path"`
	Version    string   `json:"version"`
	Major      int      `json:"major"`
	Minor      int      `json:"minor"`
	Encoders   []string `json:"encoders"`
}

// BinaryDetector inspects an ffmpeg binary.
type BinaryDetector struct {
	runner Runner
}

// NewBinaryDetector creates a detector that executes commands through runner.
func NewBinaryDetector(runner Runner) *BinaryDetector {
	return &BinaryDetector{runner: runner}
}

var versionRegex = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// Detect reads the version and encoder list of the ffmpeg at path.
func (d *BinaryDetector) Detect(ctx context.Context, path string) (*BinaryInfo, error) {
	out, err := d.runner.Run(ctx, &Command{Binary: path, Args: []string{"-hide_banner", "-version"}})
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}

	info := &BinaryInfo{FFmpegPath: path}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "ffmpeg version") {
			continue
		}
		// "ffmpeg version n6.0-2-g..." or "ffmpeg version 6.0.1 Copyright..."
		if parts := strings.Fields(line); len(parts) >= 3 {
			info.Version = parts[2]
			if m := versionRegex.FindStringSubmatch(parts[2]); len(m) == 3 {
				info.Major, _ = strconv.Atoi(m[1])
				info.Minor, _ = strconv.Atoi(m[2])
			}
		}
		break
	}
	if info.Version == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}

	out, err = d.runner.Run(ctx, &Command{Binary: path, Args: []string{"-hide_banner", "-encoders"}})
	if err != nil {
		return nil, fmt.Errorf("listing ffmpeg encoders: %w", err)
	}
	info.Encoders = parseEncoders(string(out))

	return info, nil
}

// parseEncoders reads "ffmpeg -encoders" output. Entries follow a "------"
// separator and look like " V....D libx264   libx264 H.264 ...".
func parseEncoders(output string) []string {
	var encoders []string
	inList := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 || !strings.ContainsRune("VAS", rune(fields[0][0])) {
			continue
		}
		encoders = append(encoders, fields[1])
	}
	return encoders
}

// HasEncoder reports whether the named encoder is available.
func (info *BinaryInfo) HasEncoder(name string) bool {
	for _, e := range info.Encoders {
		if e == name {
			return true
		}
	}
	return false
}

// MissingEncoders returns the entries of RequiredEncoders that are unavailable.
func (info *BinaryInfo) MissingEncoders() []string {
	var missing []string
	for _, name := range RequiredEncoders {
		if !info.HasEncoder(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
