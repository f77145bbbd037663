package ffmpeg

import (
	"fmt"
	"strings"
)

// ProbeError reports that media metadata could not be obtained.
type ProbeError struct {
	Message string
	Err     error
}

func (e *ProbeError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Probe failure messages.
const (
	msgProbeMissing     = "Could not find ffprobe executable"
	msgProbeInvalidData = "ffprobe returned invalid data"
	msgProbeNoVideo     = "File is missing a video stream"
)

// TranscodeError reports that an external media tool exited unsuccessfully.
// ExitCode is -1 when the process could not be started.
type TranscodeError struct {
	Command  []string
	ExitCode int
	Stderr   string
	URL      string
	Err      error
}

func (e *TranscodeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s => %d\n%s", strings.Join(e.Command, " "), e.ExitCode, e.Stderr)
	if e.URL != "" {
		b.WriteString("\n")
		b.WriteString(e.URL)
	}
	return b.String()
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}
