package gifengine_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediaxcode/internal/backend"
	"github.com/jmylchreest/mediaxcode/internal/config"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg/ffmpegtest"
	"github.com/jmylchreest/mediaxcode/internal/gifengine"
	"github.com/jmylchreest/mediaxcode/internal/transform"
)

func gifSource(t *testing.T, w, h, frames int) []byte {
	t.Helper()
	palette := color.Palette{color.Black, color.White}
	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		anim.Image = append(anim.Image, image.NewPaletted(image.Rect(0, 0, w, h), palette))
		anim.Delay = append(anim.Delay, 5)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))
	return buf.Bytes()
}

func newEngine(t *testing.T, cfg config.GifsicleConfig) (*gifengine.Engine, *ffmpegtest.Runner) {
	t.Helper()
	runner := ffmpegtest.New([]byte("GIF89a-out"))
	return gifengine.New(cfg, runner, nil), runner
}

func TestEngine_Load(t *testing.T) {
	e, _ := newEngine(t, config.GifsicleConfig{})
	require.NoError(t, e.Load(context.Background(), gifSource(t, 30, 20, 2), ".gif"))

	assert.Equal(t, transform.Size{Width: 30, Height: 20}, e.Size())
	assert.True(t, e.IsMultiple())

	require.NoError(t, e.Load(context.Background(), gifSource(t, 4, 4, 1), ".gif"))
	assert.False(t, e.IsMultiple())

	assert.Error(t, e.Load(context.Background(), []byte("not a gif"), ".gif"))
}

func TestEngine_ReadWithoutOperations(t *testing.T) {
	e, runner := newEngine(t, config.GifsicleConfig{})
	src := gifSource(t, 10, 10, 2)
	require.NoError(t, e.Load(context.Background(), src, ".gif"))

	out, err := e.Read(context.Background(), ".gif", nil)
	require.NoError(t, err)
	assert.Equal(t, src, out)
	assert.Empty(t, runner.Calls())
}

func TestEngine_OperationArgs(t *testing.T) {
	e, runner := newEngine(t, config.GifsicleConfig{Path: "/usr/bin/gifsicle", Args: []string{"--lossy=80"}})
	src := gifSource(t, 40, 20, 2)
	require.NoError(t, e.Load(context.Background(), src, ".gif"))

	e.AppendArgs("-O3")
	e.Resize(20, 10)
	e.Crop(2, 2, 12, 8)
	e.Rotate(90)
	e.Rotate(45)
	e.FlipVertically()
	e.FlipHorizontally()
	e.ConvertToGrayscale()

	assert.Equal(t, transform.Size{Width: 6, Height: 10}, e.Size())

	out, err := e.Read(context.Background(), ".gif", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("GIF89a-out"), out)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/usr/bin/gifsicle", calls[0].Binary)
	assert.Equal(t, src, calls[0].Stdin)
	assert.Equal(t, []string{
		"--no-warnings", "--lossy=80", "-O3",
		"--resize", "20x10", "--resize-colors", "64",
		"--crop", "2,2-12,8",
		"--rotate-90",
		"--flip-vertical", "--flip-horizontal",
		"--use-colormap", "gray",
	}, calls[0].Args)

	assert.Empty(t, e.Args())
}

func TestEngine_ReplayFromLog(t *testing.T) {
	e, runner := newEngine(t, config.GifsicleConfig{})
	require.NoError(t, e.Load(context.Background(), gifSource(t, 16, 16, 2), ".gif"))

	ops := []transform.Operation{
		{Name: transform.OpResize, Args: []int{8, 8}},
		{Name: transform.OpRotate, Args: []int{180}},
	}
	require.NoError(t, backend.Replay(e, ops))

	_, err := e.Read(context.Background(), ".gif", nil)
	require.NoError(t, err)
	assert.Equal(t, "--no-warnings --resize 8x8 --resize-colors 64 --rotate-180", runner.Calls()[0].String())
}

func TestEngine_ReadFailure(t *testing.T) {
	e, runner := newEngine(t, config.GifsicleConfig{})
	runner.Handler = func(call ffmpegtest.Call) ([]byte, error) {
		return nil, &ffmpeg.TranscodeError{Command: append([]string{call.Binary}, call.Args...), ExitCode: 1, Stderr: "bad"}
	}
	require.NoError(t, e.Load(context.Background(), gifSource(t, 8, 8, 1), ".gif"))
	e.FlipVertically()

	_, err := e.Read(context.Background(), ".gif", nil)
	var te *ffmpeg.TranscodeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.ExitCode)
}

func TestEngine_ReadBeforeLoad(t *testing.T) {
	e, _ := newEngine(t, config.GifsicleConfig{})
	_, err := e.Read(context.Background(), ".gif", nil)
	assert.ErrorIs(t, err, gifengine.ErrNoSource)
}
