package chip

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinSpecs(t *testing.T) {
	spec := GetSpec(DefaultSpecName)
	require.NotNil(t, spec)
	assert.Equal(t, 160, spec.Grid().Pixels())
	assert.Equal(t, "8x20", spec.Grid().String())
	assert.Equal(t, 6, spec.DACChannels())
	assert.NoError(t, spec.Validate())

	assert.Equal(t, []string{"pr160", "pr64"}, ListSpecs())
	assert.Nil(t, GetSpec("nope"))
}

func TestVoltageRangeContains(t *testing.T) {
	r := PR160Spec().Reference()
	assert.True(t, r.Contains(0.75))
	assert.True(t, r.Contains(1.75))
	assert.False(t, r.Contains(0.7))
	assert.False(t, r.Contains(1.8))
}

func TestSpecFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	spec := &BaseSpec{
		SpecName: "custom",
		Layout:   Grid{Rows: 4, Cols: 10},
		Channels: 2,
		DACVolts: VoltageRange{Min: 0.5, Max: 1.5},
	}
	require.NoError(t, spec.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, spec, loaded)
}

func TestValidateRejectsBadGrid(t *testing.T) {
	spec := PR160Spec()
	spec.Layout.Cols = 0
	assert.Error(t, spec.Validate())

	spec = PR160Spec()
	spec.DACVolts = VoltageRange{Min: 1, Max: 1}
	assert.Error(t, spec.Validate())
}
