package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediaxcode/internal/config"
)

func TestArgs_RenderSinglePass(t *testing.T) {
	a := &Args{}
	a.Set("-c:v", "libx264").Flag("-an").Set("-crf", "23")

	assert.Equal(t, []string{"-c:v", "libx264", "-an", "-crf", "23"}, a.Strings())
}

func TestArgs_RenderTwoPassFlags(t *testing.T) {
	a := &Args{}
	a.Set("-c:v", "libx264").Set("-crf", "23")

	assert.Equal(t,
		[]string{"-c:v", "libx264", "-crf", "23", "-pass", "1", "-passlogfile", "/tmp/x.log"},
		a.Render(1, "/tmp/x.log"))
	assert.Equal(t,
		[]string{"-c:v", "libx264", "-crf", "23", "-pass", "2", "-passlogfile", "/tmp/x.log"},
		a.Render(2, "/tmp/x.log"))
}

func TestArgs_RenderTwoPassParams(t *testing.T) {
	a := &Args{}
	a.Set("-c:v", "hevc").Params("-x265-params", []string{"vbv-bufsize=1000"}).Set("-r", "1/0.1")

	assert.Equal(t,
		[]string{"-c:v", "hevc", "-x265-params", "vbv-bufsize=1000:pass=1:stats=s.log", "-r", "1/0.1"},
		a.Render(1, "s.log"))
	// Rendering is repeatable and does not accumulate pass keys.
	assert.Equal(t,
		[]string{"-c:v", "hevc", "-x265-params", "vbv-bufsize=1000:pass=2:stats=s.log", "-r", "1/0.1"},
		a.Render(2, "s.log"))
	assert.Equal(t, "vbv-bufsize=1000", a.Value("-x265-params"))
}

func TestArgs_EmptyParamsStillRendered(t *testing.T) {
	a := &Args{}
	a.Params("-x265-params", nil)

	assert.Equal(t, []string{"-x265-params", ""}, a.Strings())
	assert.Equal(t, []string{"-x265-params", "pass=1:stats=p"}, a.Render(1, "p"))
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"", "0", "false", " 0 "} {
		assert.False(t, truthy(v), v)
	}
	for _, v := range []string{"1", "high", "4.1", "true"} {
		assert.True(t, truthy(v), v)
	}
}

func TestCodecFor(t *testing.T) {
	tests := map[string]Codec{
		"webm": CodecVP9, "vp9": CodecVP9,
		"mp4": CodecH264, "h264": CodecH264,
		"hevc": CodecH265, "h265": CodecH265,
		"webp": CodecWebP, "gif": CodecGIF, "GIF": CodecGIF,
	}
	for format, want := range tests {
		got, err := CodecFor(format)
		require.NoError(t, err, format)
		assert.Equal(t, want, got, format)
	}

	_, err := CodecFor("xyz")
	var invalid *InvalidFormatError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Invalid video format 'xyz' requested", err.Error())
}

func TestH264Args(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a := H264Args(config.H264Config{}, nil, Overrides{})
		assert.Equal(t, []string{
			"-c:v", "libx264", "-an", "-pix_fmt", "yuv420p", "-movflags", "faststart", "-f", "mp4",
		}, a.Strings())
	})

	t.Run("all tunables in order", func(t *testing.T) {
		cfg := config.H264Config{
			Tune: "film", VBR: "1M", CRF: "0", Level: "4.1", Profile: "high", Preset: "slow",
			BufSize: "2M", MaxRate: "3M", QMin: "10", QMax: "40",
		}
		a := H264Args(cfg, []string{"hflip", "scale=10:10:flags=lanczos"}, Overrides{})
		assert.Equal(t, []string{
			"-c:v", "libx264", "-an", "-pix_fmt", "yuv420p", "-movflags", "faststart",
			"-vf", "hflip,scale=10:10:flags=lanczos", "-f", "mp4",
			"-tune", "film", "-b:v", "1M", "-crf", "0", "-level", "4.1", "-profile:v", "high",
			"-preset", "slow", "-bufsize", "2M", "-maxrate", "3M", "-qmin", "10", "-qmax", "40",
		}, a.Strings())
	})

	t.Run("zero is unset for truthy tunables", func(t *testing.T) {
		a := H264Args(config.H264Config{Level: "0", QMin: "0", BufSize: "0"}, nil, Overrides{})
		assert.False(t, a.Has("-level"))
		assert.False(t, a.Has("-qmin"))
		assert.Equal(t, "0", a.Value("-bufsize"))
	})

	t.Run("request tune wins", func(t *testing.T) {
		a := H264Args(config.H264Config{Tune: "film"}, nil, Overrides{Tune: "animation"})
		assert.Equal(t, "animation", a.Value("-tune"))
	})
}

func TestH265Args(t *testing.T) {
	a := H265Args(config.H265Config{}, nil, Overrides{})
	assert.Equal(t, []string{
		"-c:v", "hevc", "-tag:v", "hvc1", "-an", "-pix_fmt", "yuv420p", "-movflags", "faststart",
		"-f", "mp4", "-x265-params", "",
	}, a.Strings())

	cfg := config.H265Config{
		CRF: "28", Preset: "medium", BufSize: "1000", MaxRate: "2000", CRFMin: "20", CRFMax: "35",
	}
	a = H265Args(cfg, nil, Overrides{Tune: "grain"})
	assert.Equal(t, "grain", a.Value("-tune"))
	assert.Equal(t, "28", a.Value("-crf"))
	assert.False(t, a.Has("-bufsize"))
	assert.Equal(t, "vbv-bufsize=1000:vbv-maxrate=2000:crf-min=20:crf-max=35", a.Value("-x265-params"))
}

func TestVP9Args(t *testing.T) {
	cfg := config.VP9Config{
		VBR: "0", CRF: "30", Deadline: "good", CPUUsed: "0", RowMT: true, MaxRate: "1M", MinRate: "100k",
	}
	a := VP9Args(cfg, []string{"vflip"}, Overrides{})
	assert.Equal(t, []string{
		"-c:v", "libvpx-vp9", "-loop", "0", "-an", "-pix_fmt", "yuv420p", "-movflags", "faststart",
		"-vf", "vflip", "-f", "webm",
		"-b:v", "0", "-crf", "30", "-deadline", "good", "-cpu-used", "0", "-row-mt", "1",
		"-maxrate", "1M", "-minrate", "100k",
	}, a.Strings())

	lossless := true
	a = VP9Args(config.VP9Config{}, nil, Overrides{Lossless: &lossless})
	assert.Equal(t, "1", a.Value("-lossless"))

	off := false
	a = VP9Args(config.VP9Config{Lossless: true}, nil, Overrides{Lossless: &off})
	assert.False(t, a.Has("-lossless"))
}

func TestWebPArgs(t *testing.T) {
	a := WebPArgs(config.WebPConfig{}, nil, Overrides{}, false)
	assert.Equal(t, []string{
		"-loop", "0", "-an", "-pix_fmt", "yuv420p", "-movflags", "faststart", "-f", "webp",
	}, a.Strings())

	a = WebPArgs(config.WebPConfig{}, nil, Overrides{}, true)
	assert.Equal(t, "rgba", a.Value("-pix_fmt"))
	assert.False(t, a.Has("-lossless"))

	a = WebPArgs(config.WebPConfig{Lossless: true, Preset: "picture", CompressionLevel: "0", QScale: "75"}, nil, Overrides{}, false)
	assert.Equal(t, "rgba", a.Value("-pix_fmt"))
	assert.Equal(t, []string{
		"-lossless", "1", "-preset", "picture", "-compression_level", "0", "-qscale", "75",
	}, a.Strings()[len(a.Strings())-8:])
}
