package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFilters(t *testing.T) {
	got := SplitFilters("format(webm):lossless():still(00:00:01.5): tune(film)")
	assert.Equal(t, []Filter{
		{Name: "format", Args: "webm"},
		{Name: "lossless", Args: ""},
		{Name: "still", Args: "00:00:01.5"},
		{Name: "tune", Args: "film"},
	}, got)

	assert.Empty(t, SplitFilters(""))
	assert.Equal(t, []Filter{{Name: "grayscale"}}, SplitFilters("grayscale"))
}

func TestApplyFilters(t *testing.T) {
	var p Params
	ignored := p.ApplyFilters("format(H264):lossless(false):tune(animation):still(12.5):quality(80)")

	assert.Equal(t, "h264", p.Format)
	assert.True(t, p.FormatFromFilter)
	require.NotNil(t, p.Lossless)
	assert.False(t, *p.Lossless)
	assert.Equal(t, "animation", p.Tune)
	assert.Equal(t, "12.5", p.StillPosition)
	assert.Equal(t, []string{"quality"}, ignored)
}

func TestApplyFilters_Defaults(t *testing.T) {
	var p Params
	p.ApplyFilters("lossless():still()")

	require.NotNil(t, p.Lossless)
	assert.True(t, *p.Lossless)
	assert.Equal(t, "0", p.StillPosition)
}

func TestApplyFilters_InvalidValues(t *testing.T) {
	p := Params{Format: "webm", FormatFromFilter: true}
	ignored := p.ApplyFilters("format(avi):still(abc):lossless(maybe)")

	assert.Empty(t, p.Format, "disallowed format clears the override")
	assert.False(t, p.FormatFromFilter)
	assert.Empty(t, p.StillPosition)
	assert.Nil(t, p.Lossless)
	assert.Equal(t, []string{"still", "lossless"}, ignored)
}

func TestValidStillPosition(t *testing.T) {
	valid := []string{"0", "5", "1.25", "-3", "00:01", "01:02:03", "01:02:03.5", "-00:10"}
	invalid := []string{"", "abc", "1:2", "1.", "01:02:03:04", "1e3"}

	for _, pos := range valid {
		assert.True(t, ValidStillPosition(pos), pos)
	}
	for _, pos := range invalid {
		assert.False(t, ValidStillPosition(pos), pos)
	}
}

func TestApplyAccept(t *testing.T) {
	var p Params
	p.ApplyAccept("video/*,image/webp,*/*;q=0.8")
	assert.True(t, p.AcceptsVideo)
	assert.True(t, p.AcceptsWebP)

	p.ApplyAccept("image/avif,image/*")
	assert.False(t, p.AcceptsVideo)
	assert.False(t, p.AcceptsWebP)
}

func TestVary(t *testing.T) {
	assert.False(t, (&Params{}).Vary())
	assert.True(t, (&Params{ShouldVary: true, Format: "webp"}).Vary(), "engine-chosen format varies")
	assert.False(t, (&Params{ShouldVary: true, Format: "webp", FormatFromFilter: true}).Vary())
}
