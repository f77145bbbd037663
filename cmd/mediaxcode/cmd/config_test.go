package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/mediaxcode/internal/config"
)

func TestToMap(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:        8080,
			ReadTimeout: 90 * time.Second,
			MaxBodySize: 64 * config.Megabyte,
		},
		FFmpeg: config.FFmpegConfig{
			H264: config.H264Config{CRF: "0", TwoPass: true},
		},
		Gifsicle: config.GifsicleConfig{Args: []string{"--lossy=80"}},
	}

	m := toMap(cfg)

	server := m["server"].(map[string]any)
	assert.Equal(t, 8080, server["port"])
	assert.Equal(t, "1m30s", server["read_timeout"])
	assert.IsType(t, "", server["max_body_size"])

	h264 := m["ffmpeg"].(map[string]any)["h264"].(map[string]any)
	assert.Equal(t, "0", h264["crf"])
	assert.Equal(t, true, h264["two_pass"])
	assert.Contains(t, h264, "level")

	// libx265 has no -level option, so h265 exposes no such key.
	h265 := m["ffmpeg"].(map[string]any)["h265"].(map[string]any)
	assert.NotContains(t, h265, "level")
	assert.Contains(t, h265, "crf")

	assert.Equal(t, []string{"--lossy=80"}, m["gifsicle"].(map[string]any)["args"])

	data, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), "crf: \"0\"")
}
