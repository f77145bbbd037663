// Package webpanim reads animated WebP containers.
//
// golang.org/x/image/webp decodes single images only. This package walks the
// RIFF container, splits ANMF frames into standalone WebP bitstreams for that
// decoder, and composites them onto the animation canvas.
package webpanim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"golang.org/x/image/webp"
)

// VP8X feature flags.
const (
	flagAnimation = 0x02
	flagAlpha     = 0x10
)

// DefaultMaxPixels bounds the canvas area accepted by Parse. A canvas of
// this size needs 256 MiB as NRGBA.
const DefaultMaxPixels = 1 << 26

var (
	// ErrNotWebP is returned for data that is not a RIFF WEBP container.
	ErrNotWebP = errors.New("webpanim: not a webp file")
	// ErrTooLarge is returned for a canvas above the pixel budget.
	ErrTooLarge = errors.New("webpanim: canvas exceeds pixel limit")
)

// Frame is one frame of an animation.
type Frame struct {
	X, Y          int
	Width, Height int
	Duration      time.Duration
	// Blend composites the frame over the canvas; otherwise it replaces the
	// covered area.
	Blend bool
	// Dispose clears the frame area to transparent before the next frame.
	Dispose bool

	bitstream []byte
}

// Animation is a parsed WebP file. Still images parse as a single frame with
// zero duration.
type Animation struct {
	Width, Height int
	HasAlpha      bool
	Animated      bool
	LoopCount     int
	Frames        []Frame
}

type chunk struct {
	fourCC  string
	payload []byte
}

func readChunks(data []byte) ([]chunk, error) {
	var chunks []chunk
	for len(data) >= 8 {
		fourCC := string(data[:4])
		size := int(binary.LittleEndian.Uint32(data[4:8]))
		data = data[8:]
		if size > len(data) {
			return nil, fmt.Errorf("webpanim: chunk %q overruns file", fourCC)
		}
		chunks = append(chunks, chunk{fourCC: fourCC, payload: data[:size]})
		// Chunks are padded to an even length.
		if size%2 == 1 && size < len(data) {
			size++
		}
		data = data[size:]
	}
	return chunks, nil
}

func uint24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

// Parse reads the container structure without decoding pixels. The canvas is
// limited to DefaultMaxPixels.
func Parse(data []byte) (*Animation, error) {
	return ParseLimit(data, DefaultMaxPixels)
}

// ParseLimit is Parse with a custom canvas budget in pixels. A budget of zero
// or less disables the area check; frames must still lie on the canvas.
func ParseLimit(data []byte, maxPixels int) (*Animation, error) {
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, ErrNotWebP
	}
	riffSize := int(binary.LittleEndian.Uint32(data[4:8]))
	body := data[12:]
	if riffSize-4 >= 0 && riffSize-4 < len(body) {
		body = body[:riffSize-4]
	}

	chunks, err := readChunks(body)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNotWebP
	}

	anim := &Animation{}
	switch chunks[0].fourCC {
	case "VP8 ", "VP8L":
		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("webpanim: %w", err)
		}
		anim.Width, anim.Height = cfg.Width, cfg.Height
		anim.HasAlpha = chunks[0].fourCC == "VP8L" && vp8lHasAlpha(chunks[0].payload)
		anim.Frames = []Frame{{Width: cfg.Width, Height: cfg.Height, bitstream: data}}
		return anim, nil
	case "VP8X":
	default:
		return nil, fmt.Errorf("webpanim: unexpected first chunk %q", chunks[0].fourCC)
	}

	vp8x := chunks[0].payload
	if len(vp8x) < 10 {
		return nil, fmt.Errorf("webpanim: short VP8X chunk")
	}
	anim.HasAlpha = vp8x[0]&flagAlpha != 0
	anim.Animated = vp8x[0]&flagAnimation != 0
	anim.Width = uint24(vp8x[4:7]) + 1
	anim.Height = uint24(vp8x[7:10]) + 1
	if maxPixels > 0 && int64(anim.Width)*int64(anim.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, anim.Width, anim.Height)
	}

	if !anim.Animated {
		anim.Frames = []Frame{{Width: anim.Width, Height: anim.Height, bitstream: data}}
		return anim, nil
	}

	for _, c := range chunks[1:] {
		switch c.fourCC {
		case "ANIM":
			if len(c.payload) >= 6 {
				anim.LoopCount = int(binary.LittleEndian.Uint16(c.payload[4:6]))
			}
		case "ANMF":
			frame, err := parseFrame(c.payload)
			if err != nil {
				return nil, err
			}
			if frame.X+frame.Width > anim.Width || frame.Y+frame.Height > anim.Height {
				return nil, fmt.Errorf("webpanim: frame %d (%dx%d at %d,%d) outside %dx%d canvas",
					len(anim.Frames), frame.Width, frame.Height, frame.X, frame.Y, anim.Width, anim.Height)
			}
			anim.Frames = append(anim.Frames, frame)
		}
	}

	return anim, nil
}

func parseFrame(p []byte) (Frame, error) {
	if len(p) < 16 {
		return Frame{}, fmt.Errorf("webpanim: short ANMF chunk")
	}
	f := Frame{
		X:        uint24(p[0:3]) * 2,
		Y:        uint24(p[3:6]) * 2,
		Width:    uint24(p[6:9]) + 1,
		Height:   uint24(p[9:12]) + 1,
		Duration: time.Duration(uint24(p[12:15])) * time.Millisecond,
		Blend:    p[15]&0x02 == 0,
		Dispose:  p[15]&0x01 != 0,
	}

	sub, err := readChunks(p[16:])
	if err != nil {
		return Frame{}, err
	}
	f.bitstream = wrapFrame(f.Width, f.Height, sub)
	if f.bitstream == nil {
		return Frame{}, fmt.Errorf("webpanim: frame has no image data")
	}
	return f, nil
}

// wrapFrame turns ANMF frame data into a standalone WebP file.
func wrapFrame(width, height int, sub []chunk) []byte {
	var alph, img *chunk
	for i := range sub {
		switch sub[i].fourCC {
		case "ALPH":
			alph = &sub[i]
		case "VP8 ", "VP8L":
			img = &sub[i]
		}
	}
	if img == nil {
		return nil
	}

	var out []chunk
	if alph != nil && img.fourCC == "VP8 " {
		vp8x := make([]byte, 10)
		vp8x[0] = flagAlpha
		putUint24(vp8x[4:7], width-1)
		putUint24(vp8x[7:10], height-1)
		out = append(out, chunk{"VP8X", vp8x}, *alph)
	}
	out = append(out, *img)
	return encodeRIFF(out)
}

func putUint24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func encodeRIFF(chunks []chunk) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	for _, c := range chunks {
		var hdr [8]byte
		copy(hdr[:4], c.fourCC)
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(c.payload))) //nolint:gosec // chunk sizes come from a parsed uint32
		body.Write(hdr[:])
		body.Write(c.payload)
		if len(c.payload)%2 == 1 {
			body.WriteByte(0)
		}
	}

	out := make([]byte, 8, 8+body.Len())
	copy(out, "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(body.Len())) //nolint:gosec // bounded by input size
	return append(out, body.Bytes()...)
}

// vp8lHasAlpha reads the alpha_is_used bit of a VP8L header.
func vp8lHasAlpha(p []byte) bool {
	if len(p) < 5 || p[0] != 0x2f {
		return false
	}
	bits := binary.LittleEndian.Uint32(p[1:5])
	return (bits>>28)&1 == 1
}

// IsAnimated reports whether the file holds more than one frame.
func (a *Animation) IsAnimated() bool {
	return a.Animated && len(a.Frames) > 1
}

// TotalDuration is the sum of all frame durations.
func (a *Animation) TotalDuration() time.Duration {
	var total time.Duration
	for _, f := range a.Frames {
		total += f.Duration
	}
	return total
}

// UniformDuration returns the shared frame duration and true when every
// frame has the same duration.
func (a *Animation) UniformDuration() (time.Duration, bool) {
	if len(a.Frames) == 0 {
		return 0, false
	}
	d := a.Frames[0].Duration
	for _, f := range a.Frames[1:] {
		if f.Duration != d {
			return 0, false
		}
	}
	return d, true
}

// FrameFunc receives each composited canvas. The image is reused between
// calls and must not be retained.
type FrameFunc func(index int, canvas *image.NRGBA, frame Frame) error

// Decode composites every frame in order and passes the canvas to fn.
func (a *Animation) Decode(fn FrameFunc) error {
	canvas := image.NewNRGBA(image.Rect(0, 0, a.Width, a.Height))
	var prev *Frame

	for i := range a.Frames {
		f := &a.Frames[i]
		if prev != nil && prev.Dispose {
			r := image.Rect(prev.X, prev.Y, prev.X+prev.Width, prev.Y+prev.Height)
			draw.Draw(canvas, r, image.Transparent, image.Point{}, draw.Src)
		}

		img, err := webp.Decode(bytes.NewReader(f.bitstream))
		if err != nil {
			return fmt.Errorf("webpanim: decoding frame %d: %w", i, err)
		}

		op := draw.Src
		if f.Blend {
			op = draw.Over
		}
		dst := image.Rect(f.X, f.Y, f.X+f.Width, f.Y+f.Height)
		draw.Draw(canvas, dst, img, img.Bounds().Min, op)

		if err := fn(i, canvas, *f); err != nil {
			return err
		}
		prev = f
	}
	return nil
}

// FirstFrame decodes and returns a copy of the first composited frame.
func (a *Animation) FirstFrame() (*image.NRGBA, error) {
	var first *image.NRGBA
	errStop := errors.New("stop")
	err := a.Decode(func(_ int, canvas *image.NRGBA, _ Frame) error {
		first = image.NewNRGBA(canvas.Bounds())
		copy(first.Pix, canvas.Pix)
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if first == nil {
		return nil, fmt.Errorf("webpanim: no frames")
	}
	return first, nil
}

// HasTransparency reports whether the first frame contains any pixel that
// is not fully opaque. Files without the alpha flag are opaque.
func (a *Animation) HasTransparency() (bool, error) {
	if !a.HasAlpha {
		return false, nil
	}
	img, err := a.FirstFrame()
	if err != nil {
		return false, err
	}
	return !img.Opaque(), nil
}
