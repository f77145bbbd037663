package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJanitor struct {
	removed int
	next    time.Time
}

func (j fakeJanitor) Removed() int { return j.removed }

func (j fakeJanitor) NextRun() (time.Time, bool) { return j.next, !j.next.IsZero() }

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0").WithBinaries(ffmpeg.Binaries{
		FFmpeg:  "/usr/bin/ffmpeg",
		FFprobe: "/usr/bin/ffprobe",
	})

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	require.NotNil(t, output)

	body := output.Body
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.0.0", body.Version)
	assert.NotEmpty(t, body.Uptime)
	assert.NotZero(t, body.CPUInfo.Cores)

	assert.Equal(t, "ok", body.Checks["ffmpeg"])
	assert.Equal(t, "ok", body.Checks["ffprobe"])
	assert.Equal(t, "missing", body.Checks["gifsicle"])
	assert.Equal(t, "disabled", body.Checks["janitor"])
	assert.Equal(t, "/usr/bin/ffmpeg", body.Components.Tools["ffmpeg"].Path)
}

func TestHealthHandler_DegradedWithoutFFmpeg(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", output.Body.Status)
	assert.Equal(t, "missing", output.Body.Checks["ffmpeg"])
}

func TestHealthHandler_Janitor(t *testing.T) {
	next := time.Date(2026, 1, 2, 3, 15, 0, 0, time.UTC)
	handler := NewHealthHandler("1.0.0").
		WithBinaries(ffmpeg.Binaries{FFmpeg: "ffmpeg"}).
		WithJanitor(fakeJanitor{removed: 3, next: next})

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	j := output.Body.Components.Janitor
	assert.Equal(t, "ok", j.Status)
	assert.Equal(t, 3, j.Removed)
	assert.Equal(t, "2026-01-02T03:15:00Z", j.NextRun)
}
