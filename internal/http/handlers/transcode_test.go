package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediaxcode/internal/config"
	"github.com/jmylchreest/mediaxcode/internal/engine"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg/ffmpegtest"
	"github.com/jmylchreest/mediaxcode/internal/transcode"
	"github.com/jmylchreest/mediaxcode/internal/webpanim/webpanimtest"
)

func testAPI(t *testing.T, runner *ffmpegtest.Runner) *chi.Mux {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{TempDir: t.TempDir()},
		FFmpeg:  config.FFmpegConfig{HandleAnimatedGIF: true, GIFAutoWebP: true},
		Image:   config.ImageConfig{DefaultQuality: 80},
	}
	factory, err := engine.NewFactory(cfg,
		engine.WithRunner(runner),
		engine.WithBinaries(ffmpeg.Binaries{FFmpeg: "ffmpeg", FFprobe: "ffprobe", Gifsicle: "gifsicle"}),
	)
	require.NoError(t, err)

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("test", "1.0.0"))
	NewTranscodeHandler(factory, 1<<20).Register(api)
	NewProbeHandler(factory, 1<<20).Register(api)
	return router
}

func post(t *testing.T, h http.Handler, target string, body []byte, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func animatedGIF(t *testing.T) []byte {
	t.Helper()
	palette := color.Palette{color.Black, color.White}
	anim := &gif.GIF{}
	for i := 0; i < 3; i++ {
		anim.Image = append(anim.Image, image.NewPaletted(image.Rect(0, 0, 4, 4), palette))
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))
	return buf.Bytes()
}

func mp4Bytes() []byte {
	box := make([]byte, 24)
	binary.BigEndian.PutUint32(box[0:4], 24)
	copy(box[4:], "ftypisom")
	copy(box[16:], "isomavc1")
	return box
}

func TestTranscode_ImageResize(t *testing.T) {
	runner := ffmpegtest.New(nil)
	api := testAPI(t, runner)

	w := post(t, api, "/api/v1/transcode?ext=png&resize=4x2&grayscale=true", pngBytes(t, 8, 4), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "image", w.Header().Get(BackendHeader))
	assert.Empty(t, w.Header().Get("Vary"))

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
	assert.Empty(t, runner.Calls())
}

func TestTranscode_AnimatedGIFVariesOnAccept(t *testing.T) {
	runner := ffmpegtest.New(webpanimtest.Still(t, webpanimtest.Solid(4, 4, color.NRGBA{G: 255, A: 255})))
	api := testAPI(t, runner)

	w := post(t, api, "/api/v1/transcode?ext=.gif", animatedGIF(t), "image/webp,*/*")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
	assert.Equal(t, "Accept", w.Header().Get("Vary"))
	assert.Equal(t, "ffmpeg", w.Header().Get(BackendHeader))
}

func TestTranscode_BadRequests(t *testing.T) {
	api := testAPI(t, ffmpegtest.New(nil))

	tests := []struct {
		name   string
		target string
		body   []byte
		status int
	}{
		{"empty body", "/api/v1/transcode?ext=png", nil, http.StatusBadRequest},
		{"bad resize", "/api/v1/transcode?ext=png&resize=big", pngBytes(t, 2, 2), http.StatusBadRequest},
		{"bad crop", "/api/v1/transcode?ext=png&crop=1,2", pngBytes(t, 2, 2), http.StatusBadRequest},
		{"bad rotation", "/api/v1/transcode?ext=png&rotate=45", pngBytes(t, 2, 2), http.StatusUnprocessableEntity},
		{"missing ext", "/api/v1/transcode", pngBytes(t, 2, 2), http.StatusUnprocessableEntity},
		{"unsupported output", "/api/v1/transcode?ext=png&output=bmp", pngBytes(t, 2, 2), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, api, tt.target, tt.body, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestTranscode_InvalidVideoFormat(t *testing.T) {
	runner := ffmpegtest.New(nil)
	runner.ProbeJSON = ffmpegtest.VideoProbe(64, 48, "1.000000")
	api := testAPI(t, runner)

	w := post(t, api, "/api/v1/transcode?ext=mp4&output=avi", mp4Bytes(), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid video format 'avi' requested")

	for _, c := range runner.Calls() {
		assert.NotEqual(t, "ffmpeg", filepath.Base(c.Binary))
	}
}

func TestTranscode_ToolFailureHidesStderr(t *testing.T) {
	runner := ffmpegtest.New(nil)
	runner.Handler = func(call ffmpegtest.Call) ([]byte, error) {
		if call.Binary == "ffprobe" {
			return ffmpegtest.VideoProbe(64, 48, "1.000000"), nil
		}
		return nil, &ffmpeg.TranscodeError{
			Command:  append([]string{call.Binary}, call.Args...),
			ExitCode: 1,
			Stderr:   "secret encoder diagnostics",
		}
	}
	api := testAPI(t, runner)

	w := post(t, api, "/api/v1/transcode?ext=mp4", mp4Bytes(), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "transcoding failed")
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestTranscode_StillExtractionFailureIsServerError(t *testing.T) {
	runner := ffmpegtest.New(nil)
	runner.Handler = func(call ffmpegtest.Call) ([]byte, error) {
		if call.Binary == "ffprobe" {
			return ffmpegtest.VideoProbe(64, 48, "1.000000"), nil
		}
		return nil, &ffmpeg.TranscodeError{
			Command:  append([]string{call.Binary}, call.Args...),
			ExitCode: 1,
			Stderr:   "seek failed",
		}
	}
	api := testAPI(t, runner)

	w := post(t, api, "/api/v1/transcode?ext=mp4&filters=still(1)", mp4Bytes(), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "transcoding failed")
	assert.NotContains(t, w.Body.String(), "seek failed")
}

func TestMediaError(t *testing.T) {
	toolErr := &ffmpeg.TranscodeError{Command: []string{"ffmpeg"}, ExitCode: 1}

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid format", &transcode.InvalidFormatError{Format: "avi"}, http.StatusBadRequest},
		{"probe failure", &engine.SourceError{Ext: ".mp4", Err: &ffmpeg.ProbeError{Message: "bad", Err: toolErr}}, http.StatusUnprocessableEntity},
		{"tool failure while loading", &engine.SourceError{Ext: ".mp4", Err: toolErr}, http.StatusInternalServerError},
		{"tool failure", toolErr, http.StatusInternalServerError},
		{"undecodable image", &engine.SourceError{Ext: ".png", Err: image.ErrFormat}, http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mediaError(context.Background(), "transcode", tt.err)
			var se huma.StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.GetStatus())
		})
	}
}

func TestTranscode_UnreadableSource(t *testing.T) {
	runner := ffmpegtest.New(nil)
	runner.ProbeJSON = []byte(`{"error": {"code": -1094995529, "string": "Invalid data found when processing input"}}`)
	api := testAPI(t, runner)

	w := post(t, api, "/api/v1/transcode?ext=mp4", mp4Bytes(), "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "unable to read source media")
}

func TestProbe(t *testing.T) {
	runner := ffmpegtest.New(nil)
	runner.ProbeJSON = ffmpegtest.VideoProbe(640, 360, "2.500000")
	api := testAPI(t, runner)

	w := post(t, api, "/api/v1/probe?ext=mp4", mp4Bytes(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body ProbeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "video/mp4", body.MIME)
	assert.False(t, body.Animated)
	assert.Equal(t, 640, body.Width)
	assert.Equal(t, 360, body.Height)
	assert.InDelta(t, 2.5, body.DurationSeconds, 1e-9)
	assert.InDelta(t, 25.0, body.FPS, 1e-9)
	assert.Equal(t, "h264", body.Metadata["codec_name"])

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasSuffix(calls[0].Output(), ".mp4"))
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, ".gif", normalizeExt("GIF"))
	assert.Equal(t, ".mp4", normalizeExt(".mp4"))
	assert.Equal(t, "", normalizeExt(" "))
}
