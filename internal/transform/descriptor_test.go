package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	d := New()

	assert.Equal(t, Size{Width: 1, Height: 1}, d.OriginalSize())
	assert.Equal(t, Size{Width: 1, Height: 1}, d.Size())
	assert.Equal(t, Rect{Width: 1, Height: 1}, d.CropInfo())
	assert.Empty(t, d.Filters())
	assert.False(t, d.HasOperations())
}

func TestSetOriginalSize_ResetsCropAndSize(t *testing.T) {
	d := New()
	d.Resize(10, 10)
	d.SetOriginalSize(640, 480)
	d.SetDuration(1500 * time.Millisecond)

	assert.Equal(t, Rect{Width: 640, Height: 480}, d.CropInfo())
	assert.Equal(t, Size{Width: 640, Height: 480}, d.Size())
	assert.Equal(t, 1500*time.Millisecond, d.Duration())
}

func TestCrop_ComposesInSourceCoordinates(t *testing.T) {
	d := New()
	d.SetOriginalSize(100, 100)

	d.Resize(50, 50)
	d.Crop(10, 10, 30, 30)
	assert.Equal(t, Rect{Width: 40, Height: 40, Left: 20, Top: 20}, d.CropInfo())
	assert.Equal(t, Size{Width: 20, Height: 20}, d.Size())

	d.Crop(5, 5, 15, 15)
	assert.Equal(t, Rect{Width: 20, Height: 20, Left: 30, Top: 30}, d.CropInfo())
	assert.Equal(t, Size{Width: 10, Height: 10}, d.Size())
}

func TestCrop_TruncatesTowardZero(t *testing.T) {
	d := New()
	d.SetOriginalSize(100, 100)
	d.Resize(40, 40)

	// 15/40*100 = 37.5 and 5/40*100 = 12.5
	d.Crop(5, 5, 20, 20)
	assert.Equal(t, Rect{Width: 37, Height: 37, Left: 12, Top: 12}, d.CropInfo())
}

func TestCrop_StaysWithinOriginalBounds(t *testing.T) {
	tests := []struct {
		name                     string
		left, top, right, bottom int
		want                     Rect
	}{
		{"overflowing right and bottom", 50, 50, 200, 200, Rect{Width: 50, Height: 50, Left: 50, Top: 50}},
		{"negative origin", -10, -20, 20, 20, Rect{Width: 30, Height: 40, Left: 0, Top: 0}},
		{"origin past the edge", 150, 150, 160, 160, Rect{Width: 0, Height: 0, Left: 100, Top: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			d.SetOriginalSize(100, 100)
			d.Crop(tt.left, tt.top, tt.right, tt.bottom)

			got := d.CropInfo()
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got.Left+got.Width, 100)
			assert.LessOrEqual(t, got.Top+got.Height, 100)
		})
	}
}

func TestCrop_DegenerateCurrentSize(t *testing.T) {
	d := New()
	d.SetOriginalSize(100, 100)
	d.Resize(0, 0)
	d.Crop(0, 0, 10, 10)

	// Previous rectangle is kept; no division by zero
	assert.Equal(t, Rect{Width: 100, Height: 100}, d.CropInfo())
	assert.Equal(t, Size{Width: 10, Height: 10}, d.Size())
}

func TestFlip_TwiceIsIdentity(t *testing.T) {
	d := New()
	d.FlipVertically()
	d.FlipVertically()
	d.FlipHorizontally()
	d.FlipHorizontally()

	assert.Empty(t, d.Filters())
	assert.Len(t, d.Operations(), 4)
}

func TestFilters_FixedOrder(t *testing.T) {
	a := New()
	a.SetOriginalSize(200, 100)
	a.Resize(100, 50)
	a.Rotate(90)
	a.FlipHorizontally()
	a.ConvertToGrayscale()
	a.FlipVertically()
	a.Crop(0, 0, 50, 50)

	b := New()
	b.SetOriginalSize(200, 100)
	b.FlipVertically()
	b.ConvertToGrayscale()
	b.Resize(100, 50)
	b.FlipHorizontally()
	b.Crop(0, 0, 50, 50)
	b.Rotate(90)

	want := []string{
		"hue=s=0",
		"vflip",
		"hflip",
		"rotate=90",
		"crop=100:100:0:0",
		"scale=50:50:flags=lanczos",
	}
	assert.Equal(t, want, a.Filters())
	assert.Equal(t, want, b.Filters())
	assert.Equal(t, "hue=s=0,vflip,hflip,rotate=90,crop=100:100:0:0,scale=50:50:flags=lanczos", a.FilterGraph())
}

func TestFilters_ZeroRotationOmitted(t *testing.T) {
	d := New()
	d.Rotate(0)
	assert.Empty(t, d.FilterGraph())
	assert.Equal(t, []Operation{{Name: OpRotate, Args: []int{0}}}, d.Operations())
}

func TestEnsureEvenSize(t *testing.T) {
	d := New()
	d.SetOriginalSize(101, 75)

	assert.True(t, d.EnsureEvenSize())
	assert.Equal(t, Size{Width: 100, Height: 74}, d.Size())
	assert.Equal(t, []Operation{{Name: OpResize, Args: []int{100, 74}}}, d.Operations())
	// Crop rectangle is untouched by the rounding resize
	assert.Equal(t, Rect{Width: 101, Height: 75}, d.CropInfo())
	assert.Equal(t, []string{"scale=100:74:flags=lanczos"}, d.Filters())

	assert.False(t, d.EnsureEvenSize())
	assert.Len(t, d.Operations(), 1)
}

func TestOperations_ReturnsCopy(t *testing.T) {
	d := New()
	d.Resize(10, 20)

	ops := d.Operations()
	ops[0].Name = "mutated"

	assert.Equal(t, OpResize, d.Operations()[0].Name)
	assert.Equal(t, "resize(10,20)", d.Operations()[0].String())
	assert.Equal(t, "flip_vertically", Operation{Name: OpFlipVertically}.String())
}
