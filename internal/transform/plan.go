package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// Plan is a user supplied set of operations. Operations are always emitted
// in the same order: crop, resize, horizontal flip, vertical flip, rotate,
// grayscale.
type Plan struct {
	// Crop holds left, top, right and bottom in source pixels.
	Crop      *[4]int
	Resize    *Size
	FlipH     bool
	FlipV     bool
	Rotate    int
	Grayscale bool
}

// ParseSize parses "WxH".
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("invalid size %q: expected WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width < 0 {
		return Size{}, fmt.Errorf("invalid size %q: bad width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height < 0 {
		return Size{}, fmt.Errorf("invalid size %q: bad height", s)
	}
	return Size{Width: width, Height: height}, nil
}

// ParseBox parses "left,top,right,bottom".
func ParseBox(s string) ([4]int, error) {
	var box [4]int
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return box, fmt.Errorf("invalid crop %q: expected left,top,right,bottom", s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return box, fmt.Errorf("invalid crop %q: bad value %q", s, p)
		}
		box[i] = v
	}
	if box[2] <= box[0] || box[3] <= box[1] {
		return box, fmt.Errorf("invalid crop %q: empty rectangle", s)
	}
	return box, nil
}

// ParsePlan builds a plan from textual options. Empty strings leave the
// corresponding operation out.
func ParsePlan(resize, crop string, rotate int, flipH, flipV, grayscale bool) (Plan, error) {
	p := Plan{FlipH: flipH, FlipV: flipV, Grayscale: grayscale}

	if crop != "" {
		box, err := ParseBox(crop)
		if err != nil {
			return Plan{}, err
		}
		p.Crop = &box
	}
	if resize != "" {
		size, err := ParseSize(resize)
		if err != nil {
			return Plan{}, err
		}
		p.Resize = &size
	}

	switch rotate {
	case 0, 90, 180, 270:
		p.Rotate = rotate
	default:
		return Plan{}, fmt.Errorf("invalid rotation %d: must be 0, 90, 180 or 270", rotate)
	}
	return p, nil
}

// Operations returns the plan as an operation log.
func (p Plan) Operations() []Operation {
	var ops []Operation
	if p.Crop != nil {
		ops = append(ops, Operation{Name: OpCrop, Args: p.Crop[:]})
	}
	if p.Resize != nil {
		ops = append(ops, Operation{Name: OpResize, Args: []int{p.Resize.Width, p.Resize.Height}})
	}
	if p.FlipH {
		ops = append(ops, Operation{Name: OpFlipHorizontally})
	}
	if p.FlipV {
		ops = append(ops, Operation{Name: OpFlipVertically})
	}
	if p.Rotate != 0 {
		ops = append(ops, Operation{Name: OpRotate, Args: []int{p.Rotate}})
	}
	if p.Grayscale {
		ops = append(ops, Operation{Name: OpConvertToGrayscale})
	}
	return ops
}
