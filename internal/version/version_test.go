package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_WithoutCommit(t *testing.T) {
	assert.Contains(t, String(), "mediaxcode version dev")
}

func TestString_WithCommit(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })
	Commit = "0123456789abcdef"

	assert.Contains(t, String(), "commit: 01234567")
}

func TestJSON(t *testing.T) {
	data, err := JSON()
	require.NoError(t, err)

	var info Info
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "mediaxcode/"+Version, UserAgent())
}
