package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	s, err := ParseSize("320x240")
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 320, Height: 240}, s)

	s, err = ParseSize(" 0X100 ")
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 0, Height: 100}, s)

	for _, bad := range []string{"", "320", "ax2", "2x-1"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseBox(t *testing.T) {
	box, err := ParseBox("10, 20,110,220")
	require.NoError(t, err)
	assert.Equal(t, [4]int{10, 20, 110, 220}, box)

	for _, bad := range []string{"1,2,3", "a,b,c,d", "10,10,5,20", "0,0,10,0"} {
		_, err := ParseBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePlan_Order(t *testing.T) {
	p, err := ParsePlan("100x50", "0,0,200,100", 90, true, true, true)
	require.NoError(t, err)

	var names []string
	for _, op := range p.Operations() {
		names = append(names, op.String())
	}
	assert.Equal(t, []string{
		"crop(0,0,200,100)",
		"resize(100,50)",
		"flip_horizontally",
		"flip_vertically",
		"rotate(90)",
		"convert_to_grayscale",
	}, names)
}

func TestParsePlan_Empty(t *testing.T) {
	p, err := ParsePlan("", "", 0, false, false, false)
	require.NoError(t, err)
	assert.Empty(t, p.Operations())
}

func TestParsePlan_InvalidRotation(t *testing.T) {
	_, err := ParsePlan("", "", 45, false, false, false)
	assert.ErrorContains(t, err, "invalid rotation 45")
}
