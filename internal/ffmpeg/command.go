// Package ffmpeg wraps the external media tools: command construction,
// process execution, binary discovery and ffprobe metadata.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/jmylchreest/mediaxcode/internal/observability"
	"github.com/jmylchreest/mediaxcode/pkg/format"
)

// Command is a fully built external process invocation.
type Command struct {
	Binary string
	Args   []string
	// Stdin is fed to the process when non-nil.
	Stdin []byte
}

// Argv returns the binary followed by its arguments.
func (c *Command) Argv() []string {
	return append([]string{c.Binary}, c.Args...)
}

// String returns the command line joined by spaces.
func (c *Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// CommandBuilder builds ffmpeg commands with a fluent API.
//
// The resulting argument order is:
//
//	-hide_banner <input args> -i <input>... <output args> -y <output>
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	outputArgs []string
	output     string
	overwrite  bool
	stdin      []byte
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:     ffmpegPath,
		globalArgs: []string{"-hide_banner"},
	}
}

// InputArgs appends arguments that apply to the next input.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// Input adds an input. Multiple inputs are emitted in call order.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-i", input)
	return b
}

// OutputArgs appends output options.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Overwrite emits -y before the output.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Output sets the output path ("-" for stdout).
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Stdin sets bytes to pipe to the process.
func (b *CommandBuilder) Stdin(data []byte) *CommandBuilder {
	b.stdin = data
	return b
}

// Build assembles the command.
func (b *CommandBuilder) Build() *Command {
	args := make([]string, 0, len(b.globalArgs)+len(b.inputArgs)+len(b.outputArgs)+2)
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, b.outputArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}
	if b.output != "" {
		args = append(args, b.output)
	}

	return &Command{
		Binary: b.binary,
		Args:   args,
		Stdin:  b.stdin,
	}
}

// Runner executes commands and returns their stdout.
//
// A non-zero exit yields a *TranscodeError. Implementations return whatever
// stdout was captured even when the command fails.
type Runner interface {
	Run(ctx context.Context, cmd *Command) ([]byte, error)
}

// ExecRunner runs commands as local processes.
//
// Processes are not tied to ctx: once spawned they run to completion. ctx is
// used for logging only.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a runner that logs to logger (slog.Default when nil).
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: observability.WithComponent(logger, "exec")}
}

// Run executes cmd and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, c *Command) ([]byte, error) {
	proc := exec.Command(c.Binary, c.Args...) //nolint:gosec,noctx // arguments are built internally
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	if c.Stdin != nil {
		proc.Stdin = bytes.NewReader(c.Stdin)
	}

	r.logger.DebugContext(ctx, "running command", slog.String("command", c.String()))

	start := time.Now()
	if err := proc.Start(); err != nil {
		return nil, &TranscodeError{Command: c.Argv(), ExitCode: -1, Stderr: err.Error(), Err: err}
	}

	monitor := NewProcessMonitor(proc.Process.Pid)
	monitor.Start()
	waitErr := proc.Wait()
	monitor.Stop()
	stats := monitor.Stats()

	exitCode := 0
	if proc.ProcessState != nil {
		exitCode = proc.ProcessState.ExitCode()
	}

	r.logger.DebugContext(ctx, "command finished",
		slog.String("binary", c.Binary),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", time.Since(start)),
		slog.String("peak_rss", format.Bytes(int64(stats.PeakRSSBytes))),
		slog.Float64("cpu_percent", stats.CPUPercent),
		slog.String("stdout_size", format.Bytes(int64(stdout.Len()))),
	)
	if stderr.Len() > 0 {
		r.logger.Log(ctx, observability.LevelTrace, "command stderr", slog.String("stderr", stderr.String()))
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			exitCode = -1
		}
		return stdout.Bytes(), &TranscodeError{
			Command:  c.Argv(),
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      waitErr,
		}
	}

	return stdout.Bytes(), nil
}
