package webpanim_test

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/jmylchreest/mediaxcode/internal/webpanim"
	"github.com/jmylchreest/mediaxcode/internal/webpanim/webpanimtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
	none = color.NRGBA{}
)

func TestParse_Animated(t *testing.T) {
	data := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(8, 6, red), webpanimtest.Solid(8, 6, blue), webpanimtest.Solid(8, 6, red)},
		[]time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond},
		false,
	)

	anim, err := webpanim.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 8, anim.Width)
	assert.Equal(t, 6, anim.Height)
	assert.True(t, anim.Animated)
	assert.True(t, anim.IsAnimated())
	assert.False(t, anim.HasAlpha)
	require.Len(t, anim.Frames, 3)
	assert.Equal(t, 300*time.Millisecond, anim.TotalDuration())

	d, uniform := anim.UniformDuration()
	assert.True(t, uniform)
	assert.Equal(t, 100*time.Millisecond, d)

	for _, f := range anim.Frames {
		assert.True(t, f.Blend)
		assert.False(t, f.Dispose)
		assert.Equal(t, 8, f.Width)
	}
}

func TestParse_MixedDurations(t *testing.T) {
	data := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, red), webpanimtest.Solid(4, 4, blue)},
		[]time.Duration{40 * time.Millisecond, 70 * time.Millisecond},
		false,
	)

	anim, err := webpanim.Parse(data)
	require.NoError(t, err)

	_, uniform := anim.UniformDuration()
	assert.False(t, uniform)
	assert.Equal(t, 110*time.Millisecond, anim.TotalDuration())
}

func TestParse_SingleFrameAnimationIsNotAnimated(t *testing.T) {
	data := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, red)},
		[]time.Duration{50 * time.Millisecond},
		false,
	)

	anim, err := webpanim.Parse(data)
	require.NoError(t, err)
	assert.False(t, anim.IsAnimated())
}

func TestParse_Still(t *testing.T) {
	anim, err := webpanim.Parse(webpanimtest.Still(t, webpanimtest.Solid(5, 3, red)))
	require.NoError(t, err)

	assert.Equal(t, 5, anim.Width)
	assert.Equal(t, 3, anim.Height)
	assert.False(t, anim.IsAnimated())
	require.Len(t, anim.Frames, 1)
	assert.Zero(t, anim.TotalDuration())
}

func TestParse_Invalid(t *testing.T) {
	_, err := webpanim.Parse([]byte("GIF89a"))
	assert.ErrorIs(t, err, webpanim.ErrNotWebP)

	_, err = webpanim.Parse([]byte("RIFF\x10\x00\x00\x00WEBPVP8X\xff\x00\x00\x00"))
	assert.Error(t, err)
}

// vp8xCanvasOffset is where the canvas width starts in files built by
// webpanimtest.Animated: RIFF header, then the VP8X chunk header and flags.
const vp8xCanvasOffset = 24

func TestParse_OversizedCanvas(t *testing.T) {
	data := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, red), webpanimtest.Solid(4, 4, none)},
		[]time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		true,
	)
	for i := vp8xCanvasOffset; i < vp8xCanvasOffset+6; i++ {
		data[i] = 0xff
	}

	_, err := webpanim.Parse(data)
	assert.ErrorIs(t, err, webpanim.ErrTooLarge)

	_, err = webpanim.ParseLimit(data, 15)
	assert.ErrorIs(t, err, webpanim.ErrTooLarge)
}

func TestParseLimit(t *testing.T) {
	data := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, red), webpanimtest.Solid(4, 4, blue)},
		[]time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		false,
	)

	_, err := webpanim.ParseLimit(data, 15)
	assert.ErrorIs(t, err, webpanim.ErrTooLarge)

	anim, err := webpanim.ParseLimit(data, 16)
	require.NoError(t, err)
	assert.Equal(t, 4, anim.Width)

	_, err = webpanim.ParseLimit(data, 0)
	assert.NoError(t, err)
}

func TestParse_FrameOutsideCanvas(t *testing.T) {
	data := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, red), webpanimtest.Solid(4, 4, blue)},
		[]time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		false,
	)
	// Shrink the canvas to 2x4 while the frames stay 4x4.
	data[vp8xCanvasOffset] = 1

	_, err := webpanim.ParseLimit(data, 0)
	require.Error(t, err)
	assert.ErrorContains(t, err, "outside 2x4 canvas")
}

func TestDecode_CompositesFrames(t *testing.T) {
	data := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, red), webpanimtest.Solid(4, 4, blue)},
		[]time.Duration{100 * time.Millisecond, 100 * time.Millisecond},
		false,
	)
	anim, err := webpanim.Parse(data)
	require.NoError(t, err)

	var colours []color.NRGBA
	err = anim.Decode(func(i int, canvas *image.NRGBA, f webpanim.Frame) error {
		colours = append(colours, canvas.NRGBAAt(1, 1))
		assert.Equal(t, 100*time.Millisecond, f.Duration)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []color.NRGBA{red, blue}, colours)
}

func TestHasTransparency(t *testing.T) {
	opaque := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, red), webpanimtest.Solid(4, 4, blue)},
		[]time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		true,
	)
	anim, err := webpanim.Parse(opaque)
	require.NoError(t, err)
	transparent, err := anim.HasTransparency()
	require.NoError(t, err)
	assert.False(t, transparent, "alpha flag alone does not imply transparency")

	seeThrough := webpanimtest.Animated(t,
		[]image.Image{webpanimtest.Solid(4, 4, none), webpanimtest.Solid(4, 4, blue)},
		[]time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		true,
	)
	anim, err = webpanim.Parse(seeThrough)
	require.NoError(t, err)
	transparent, err = anim.HasTransparency()
	require.NoError(t, err)
	assert.True(t, transparent)
}
