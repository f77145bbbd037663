// Package ffmpegtest provides a recording ffmpeg.Runner for tests.
package ffmpegtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
)

// Call is one recorded invocation.
type Call struct {
	Binary string
	Args   []string
	Stdin  []byte
}

// String returns the call joined by spaces, without the binary.
func (c Call) String() string {
	return strings.Join(c.Args, " ")
}

// Output returns the last argument, which is the output target for ffmpeg.
func (c Call) Output() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}

// Runner records commands instead of executing them.
//
// Without a Handler every call succeeds:
//   - ffprobe calls return ProbeJSON;
//   - calls with stdin return Output as stdout;
//   - when the last argument is a file path, Output is written there;
//   - otherwise Output is returned as stdout.
type Runner struct {
	// Output is the fake media produced by each call.
	Output []byte
	// ProbeJSON is returned by ffprobe invocations.
	ProbeJSON []byte
	// Handler, when set, replaces the default behaviour.
	Handler func(call Call) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

// New returns a runner producing output for every call.
func New(output []byte) *Runner {
	return &Runner{Output: output}
}

// VideoProbe returns ffprobe JSON describing a single video stream.
func VideoProbe(width, height int, duration string) []byte {
	return []byte(fmt.Sprintf(`{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": %d, "height": %d,
     "avg_frame_rate": "25/1", "duration": %q}
  ],
  "format": {"filename": "input", "format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": %q}
}`, width, height, duration, duration))
}

// Run implements ffmpeg.Runner.
func (r *Runner) Run(_ context.Context, cmd *ffmpeg.Command) ([]byte, error) {
	call := Call{
		Binary: cmd.Binary,
		Args:   append([]string(nil), cmd.Args...),
		Stdin:  cmd.Stdin,
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	if r.Handler != nil {
		return r.Handler(call)
	}
	return r.Default(call)
}

// Default writes Output to the call's output path, or returns it as stdout.
func (r *Runner) Default(call Call) ([]byte, error) {
	if strings.Contains(filepath.Base(call.Binary), "ffprobe") {
		return r.ProbeJSON, nil
	}
	if call.Stdin != nil {
		return r.Output, nil
	}

	switch out := call.Output(); {
	case out == "-" || out == "" || strings.HasPrefix(out, "-"):
		return r.Output, nil
	case out == os.DevNull:
		return nil, nil
	default:
		return nil, os.WriteFile(out, r.Output, 0o600)
	}
}

// Calls returns the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// ArgValue returns the argument following flag in args, or "" when absent.
func ArgValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// HasArg reports whether args contains arg.
func HasArg(args []string, arg string) bool {
	for _, a := range args {
		if a == arg {
			return true
		}
	}
	return false
}
