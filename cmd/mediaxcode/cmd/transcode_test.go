package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediaxcode/internal/transform"
)

func parsedTranscodeCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "transcode"}
	addTranscodeFlags(c.Flags())
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestRequestFromFlags(t *testing.T) {
	c := parsedTranscodeCmd(t, "--format", "WEBM", "--lossless", "--tune", "film", "--still", "00:00:01.5")

	req, err := requestFromFlags(c, "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, "webm", req.Format)
	assert.True(t, req.FormatFromFilter)
	require.NotNil(t, req.Lossless)
	assert.True(t, *req.Lossless)
	assert.Equal(t, "film", req.Tune)
	assert.Equal(t, "00:00:01.5", req.StillPosition)
	assert.Equal(t, "in.mp4", req.URL)
}

func TestRequestFromFlags_Defaults(t *testing.T) {
	req, err := requestFromFlags(parsedTranscodeCmd(t), "in.gif")
	require.NoError(t, err)
	assert.Empty(t, req.Format)
	assert.Nil(t, req.Lossless)
	assert.Empty(t, req.StillPosition)
}

func TestRequestFromFlags_Invalid(t *testing.T) {
	_, err := requestFromFlags(parsedTranscodeCmd(t, "--format", "avi"), "in.mp4")
	assert.ErrorContains(t, err, `invalid format "avi"`)

	_, err = requestFromFlags(parsedTranscodeCmd(t, "--still", "soon"), "in.mp4")
	assert.ErrorContains(t, err, `invalid still position "soon"`)
}

func TestPlanFromFlags(t *testing.T) {
	c := parsedTranscodeCmd(t, "--resize", "320x180", "--rotate", "90", "--flip-h")

	plan, err := planFromFlags(c)
	require.NoError(t, err)
	assert.Equal(t, []transform.Operation{
		{Name: transform.OpResize, Args: []int{320, 180}},
		{Name: transform.OpFlipHorizontally},
		{Name: transform.OpRotate, Args: []int{90}},
	}, plan.Operations())

	_, err = planFromFlags(parsedTranscodeCmd(t, "--rotate", "30"))
	assert.Error(t, err)
}
