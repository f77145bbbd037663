// Package transform accumulates geometric and colour operations on a media
// source and derives the equivalent ffmpeg filter chain.
//
// Coordinates passed to Crop are relative to the current output (after
// earlier resizes and crops). The descriptor keeps the effective crop
// rectangle in original source coordinates so that any sequence of crops
// collapses into a single crop filter.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operation names, as replayed on secondary backends.
const (
	OpResize             = "resize"
	OpCrop               = "crop"
	OpRotate             = "rotate"
	OpFlipVertically     = "flip_vertically"
	OpFlipHorizontally   = "flip_horizontally"
	OpConvertToGrayscale = "convert_to_grayscale"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Rect is a crop rectangle: its size and top-left offset.
type Rect struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Left   int `json:"left"`
	Top    int `json:"top"`
}

// Operation is one entry of the append-only operation log.
type Operation struct {
	Name string `json:"name"`
	Args []int  `json:"args,omitempty"`
}

func (o Operation) String() string {
	if len(o.Args) == 0 {
		return o.Name
	}
	parts := make([]string, len(o.Args))
	for i, a := range o.Args {
		parts[i] = strconv.Itoa(a)
	}
	return o.Name + "(" + strings.Join(parts, ",") + ")"
}

// Descriptor is the mutable per-request media state.
type Descriptor struct {
	originalSize Size
	duration     time.Duration
	cropInfo     Rect
	imageSize    Size

	rotateDegrees int
	flippedV      bool
	flippedH      bool
	grayscale     bool
	resized       bool
	cropped       bool

	ops []Operation
}

// New returns a descriptor for a 1x1 source with no operations.
func New() *Descriptor {
	d := &Descriptor{}
	d.SetOriginalSize(1, 1)
	return d
}

// SetOriginalSize sets the source dimensions and resets the crop rectangle
// and output size to the full frame.
func (d *Descriptor) SetOriginalSize(width, height int) {
	d.originalSize = Size{Width: width, Height: height}
	d.cropInfo = Rect{Width: width, Height: height}
	d.imageSize = Size{Width: width, Height: height}
}

// OriginalSize returns the source dimensions.
func (d *Descriptor) OriginalSize() Size { return d.originalSize }

// SetDuration records the probed source duration.
func (d *Descriptor) SetDuration(duration time.Duration) { d.duration = duration }

// Duration returns the probed source duration.
func (d *Descriptor) Duration() time.Duration { return d.duration }

// Size returns the current output size.
func (d *Descriptor) Size() Size { return d.imageSize }

// CropInfo returns the effective crop rectangle in source coordinates.
func (d *Descriptor) CropInfo() Rect { return d.cropInfo }

// RotateDegrees returns the requested rotation.
func (d *Descriptor) RotateDegrees() int { return d.rotateDegrees }

// Resized reports whether any resize was applied.
func (d *Descriptor) Resized() bool { return d.resized }

// Cropped reports whether any crop was applied.
func (d *Descriptor) Cropped() bool { return d.cropped }

// Operations returns a copy of the operation log in call order.
func (d *Descriptor) Operations() []Operation {
	out := make([]Operation, len(d.ops))
	copy(out, d.ops)
	return out
}

// HasOperations reports whether any operation was logged.
func (d *Descriptor) HasOperations() bool { return len(d.ops) > 0 }

func (d *Descriptor) log(name string, args ...int) {
	d.ops = append(d.ops, Operation{Name: name, Args: args})
}

// Resize sets the output size.
func (d *Descriptor) Resize(width, height int) {
	d.log(OpResize, width, height)
	d.resized = true
	d.imageSize = Size{Width: width, Height: height}
}

// Crop cuts the current output to the rectangle (left,top)-(right,bottom) and
// folds it into the effective crop rectangle.
func (d *Descriptor) Crop(left, top, right, bottom int) {
	d.log(OpCrop, left, top, right, bottom)
	d.cropped = true

	old := d.cropInfo
	oldW, oldH := d.imageSize.Width, d.imageSize.Height

	width := right - left
	height := bottom - top
	d.imageSize = Size{Width: width, Height: height}

	// A degenerate current size cannot be scaled from; keep the previous
	// rectangle rather than dividing by zero.
	if oldW <= 0 || oldH <= 0 {
		return
	}

	rect := Rect{
		Width:  int(float64(width) / float64(oldW) * float64(old.Width)),
		Height: int(float64(height) / float64(oldH) * float64(old.Height)),
		Left:   int(float64(old.Left) + float64(left)/float64(oldW)*float64(old.Width)),
		Top:    int(float64(old.Top) + float64(top)/float64(oldH)*float64(old.Height)),
	}
	d.cropInfo = clampRect(rect, d.originalSize)
}

func clampRect(r Rect, bounds Size) Rect {
	r.Left = clamp(r.Left, 0, bounds.Width)
	r.Top = clamp(r.Top, 0, bounds.Height)
	r.Width = clamp(r.Width, 0, bounds.Width-r.Left)
	r.Height = clamp(r.Height, 0, bounds.Height-r.Top)
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Rotate sets the rotation angle in degrees.
func (d *Descriptor) Rotate(degrees int) {
	d.log(OpRotate, degrees)
	d.rotateDegrees = degrees
}

// FlipVertically toggles vertical mirroring.
func (d *Descriptor) FlipVertically() {
	d.log(OpFlipVertically)
	d.flippedV = !d.flippedV
}

// FlipHorizontally toggles horizontal mirroring.
func (d *Descriptor) FlipHorizontally() {
	d.log(OpFlipHorizontally)
	d.flippedH = !d.flippedH
}

// ConvertToGrayscale desaturates the output.
func (d *Descriptor) ConvertToGrayscale() {
	d.log(OpConvertToGrayscale)
	d.grayscale = true
}

// EnsureEvenSize resizes down to even dimensions when either output
// dimension is odd, as required by yuv420p encoders. The resize is logged
// like any other. It reports whether a resize was applied.
func (d *Descriptor) EnsureEvenSize() bool {
	w, h := d.imageSize.Width, d.imageSize.Height
	if w%2 == 0 && h%2 == 0 {
		return false
	}
	d.Resize(w/2*2, h/2*2)
	return true
}

// Filters returns the ffmpeg video filters for the current state.
// The order is fixed regardless of call order; scale is always last.
func (d *Descriptor) Filters() []string {
	var filters []string
	if d.grayscale {
		filters = append(filters, "hue=s=0")
	}
	if d.flippedV {
		filters = append(filters, "vflip")
	}
	if d.flippedH {
		filters = append(filters, "hflip")
	}
	if d.rotateDegrees != 0 {
		filters = append(filters, fmt.Sprintf("rotate=%d", d.rotateDegrees))
	}
	if d.cropped {
		c := d.cropInfo
		filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d", c.Width, c.Height, c.Left, c.Top))
	}
	if d.resized {
		filters = append(filters, fmt.Sprintf("scale=%d:%d:flags=lanczos", d.imageSize.Width, d.imageSize.Height))
	}
	return filters
}

// FilterGraph returns Filters joined with commas, or "" when there are none.
func (d *Descriptor) FilterGraph() string {
	return strings.Join(d.Filters(), ",")
}
