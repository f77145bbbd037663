// Package webpanimtest builds animated WebP fixtures for tests.
package webpanimtest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/require"
)

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// Still encodes img as a lossless single-image WebP.
func Still(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, webp.Encode(&buf, img, &webp.Options{Lossless: true}))
	return buf.Bytes()
}

// Animated encodes full-canvas frames as an animated WebP with the given
// per-frame durations.
func Animated(t testing.TB, frames []image.Image, durations []time.Duration, alpha bool) []byte {
	t.Helper()
	require.Len(t, durations, len(frames))
	require.NotEmpty(t, frames)

	bounds := frames[0].Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	vp8x := make([]byte, 10)
	vp8x[0] = 0x02
	if alpha {
		vp8x[0] |= 0x10
	}
	put24(vp8x[4:7], w-1)
	put24(vp8x[7:10], h-1)

	anim := make([]byte, 6) // background colour + loop count 0

	var body bytes.Buffer
	body.WriteString("WEBP")
	writeChunk(&body, "VP8X", vp8x)
	writeChunk(&body, "ANIM", anim)

	for i, frame := range frames {
		vp8l := vp8lChunk(t, Still(t, frame))

		hdr := make([]byte, 16)
		put24(hdr[6:9], w-1)
		put24(hdr[9:12], h-1)
		put24(hdr[12:15], int(durations[i]/time.Millisecond))

		var payload bytes.Buffer
		payload.Write(hdr)
		writeChunk(&payload, "VP8L", vp8l)
		writeChunk(&body, "ANMF", payload.Bytes())
	}

	out := []byte("RIFF\x00\x00\x00\x00")
	binary.LittleEndian.PutUint32(out[4:], uint32(body.Len())) //nolint:gosec // test fixture
	return append(out, body.Bytes()...)
}

func vp8lChunk(t testing.TB, file []byte) []byte {
	t.Helper()
	data := file[12:]
	for len(data) >= 8 {
		size := int(binary.LittleEndian.Uint32(data[4:8]))
		if string(data[:4]) == "VP8L" {
			return data[8 : 8+size]
		}
		data = data[8+size+size%2:]
	}
	require.FailNow(t, "encoded webp has no VP8L chunk")
	return nil
}

func writeChunk(buf *bytes.Buffer, fourCC string, payload []byte) {
	var hdr [8]byte
	copy(hdr[:4], fourCC)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload))) //nolint:gosec // test fixture
	buf.Write(hdr[:])
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0)
	}
}

func put24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
