package equalize

import (
	"math"
	"testing"

	"pixel-equalizer/internal/chip"
	"pixel-equalizer/internal/scan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrimmedMean(t *testing.T) {
	tests := []struct {
		name      string
		x         []float64
		high, low float64
		want      float64
	}{
		{"empty", nil, 10, 10, 0},
		{"single", []float64{7}, 10, 10, 7},
		{"no trim", []float64{4, 1, 3, 2}, 0, 0, 2.5},
		{"outliers dropped", []float64{1, 10, 10, 10, 10, 10, 10, 10, 10, 100}, 20, 20, 10},
		{"crossed bounds", []float64{1, 2, 3}, 80, 80, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, trimmedMean(tt.x, tt.high, tt.low), 1e-9)
		})
	}
}

func TestDiscConsensus(t *testing.T) {
	assert.Equal(t, 0, DiscConsensus(nil))
	assert.Equal(t, 0, DiscConsensus([]float64{0, 3, 9.99}))
	assert.Equal(t, 16, DiscConsensus([]float64{12, 20, 5}))
	assert.Equal(t, 10, DiscConsensus([]float64{10, 11, math.NaN()}))
}

func TestIfeedConsensus(t *testing.T) {
	assert.True(t, math.IsNaN(IfeedConsensus(nil)))
	assert.True(t, math.IsNaN(IfeedConsensus([]float64{50, 100})))
	assert.InDelta(t, 200, IfeedConsensus([]float64{150, 250, 90}), 1e-9)
}

func TestOptimaOnSyntheticChips(t *testing.T) {
	cube, _ := discCube(t, 1, 40, 2)
	assert.InDelta(t, 30, OptimalThresholdPosition(cube.Chip(0), 5, 10, 10), 1e-9)

	cube, _ = ifeedCube(t, 1, 16, 2, 1)
	assert.InDelta(t, 224, OptimalGain(cube.Chip(0), 5, 10, 10), 1e-9)

	cube, _ = flatCube(t, 1, 4, 2, 5)
	assert.Equal(t, 0.0, OptimalThresholdPosition(cube.Chip(0), 5, 10, 10))
	assert.Equal(t, 0.0, OptimalGain(cube.Chip(0), 5, 10, 10))
}

func TestStep3NoiseFactor(t *testing.T) {
	// One pixel, 3 settings, samples {0, 20} at setting 1: mean 10, std 10.
	cube, err := scan.NewCube(scan.Shape{Settings: 3, Samples: 2, Chips: 1, Pixels: 1},
		[]uint32{30, 30, 0, 20, 0, 0})
	require.NoError(t, err)
	dac := []float64{0, 10, 20}

	eq, err := Step3(cube.Chip(0), dac, 5, 0, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, eq, "edge at setting 1 mirrors onto itself")

	eq, err = Step3(cube.Chip(0), dac, 5, 1, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, eq, "noisy setting 1 rejected, edge falls to 0")
}

func TestStep3DACMismatchLogged(t *testing.T) {
	cube, _ := discCube(t, 1, 16, 1)
	core, logs := observer.New(zap.ErrorLevel)

	eq, err := Step3(cube.Chip(0), make([]float64, 15), 5, 0, 10, zap.New(core))
	assert.Nil(t, eq)
	assert.ErrorIs(t, err, scan.ErrIndex)
	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, 16, logs.All()[0].ContextMap()["expected_settings"])
	assert.EqualValues(t, 15, logs.All()[0].ContextMap()["actual_settings"])
}

func TestStep3MasksUnreachableCodes(t *testing.T) {
	// Edge at setting 0, target at setting 3: wanted code 2*30-0 = 60 is
	// beyond the swept 0..30 by more than one step.
	cube, err := scan.NewCube(scan.Shape{Settings: 4, Samples: 1, Chips: 1, Pixels: 1},
		[]uint32{9, 0, 0, 0})
	require.NoError(t, err)

	eq, err := Step3(cube.Chip(0), []float64{0, 10, 20, 30}, 5, 0, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{Masked}, eq)
}

func TestStep1TiesPreferLowerDAC(t *testing.T) {
	// Responses 90 and 110 are equally far from gain 100; the setting with
	// the lower DAC code wins even though it comes later in the sweep.
	cube, err := scan.NewCube(scan.Shape{Settings: 2, Samples: 1, Chips: 1, Pixels: 1},
		[]uint32{90, 110})
	require.NoError(t, err)

	eq, err := Step1(cube.Chip(0), []float64{50, 40}, 5, 20, 20, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, eq)

	eq, err = Step1(cube.Chip(0), []float64{50, 40}, 5, 5, 5, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{Masked}, eq, "best response outside the 5% band")

	eq, err = Step1(cube.Chip(0), []float64{50, 40}, 5, 20, 20, math.NaN(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{Masked}, eq)

	_, err = Step1(cube.Chip(0), []float64{50}, 5, 20, 20, 100, nil)
	assert.ErrorIs(t, err, scan.ErrIndex)
}

func TestRangeSplit(t *testing.T) {
	eq := []int{0, 3, 4, 7, Masked}

	values, ranges, masks := RangeSplit(eq, 8, UpperHalf)
	assert.Equal(t, []int32{0, 3, 0, 3, 0}, values)
	assert.Equal(t, []bool{false, false, true, true, false}, ranges)
	assert.Equal(t, []bool{false, false, false, false, true}, masks)

	values, ranges, masks = RangeSplit(eq, 8, LowerHalf)
	assert.Equal(t, []int32{0, 3, 0, 3, 0}, values)
	assert.Equal(t, []bool{true, true, false, false, false}, ranges)
	assert.Equal(t, []bool{false, false, false, false, true}, masks)

	// odd sweep: half is rounded up
	values, ranges, _ = RangeSplit([]int{2, 3}, 5, UpperHalf)
	assert.Equal(t, []int32{2, 0}, values)
	assert.Equal(t, []bool{false, true}, ranges)
}

func TestReshape(t *testing.T) {
	grid, err := Reshape([]int{1, 2, 3, 4, 5, 6}, chip.Grid{Rows: 2, Cols: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}}, grid)

	_, err = Reshape([]bool{true}, chip.Grid{Rows: 2, Cols: 3})
	assert.ErrorIs(t, err, ErrGridMismatch)
}

func TestParamsAndModality(t *testing.T) {
	m, err := ParseModality("IFEED")
	require.NoError(t, err)
	assert.Equal(t, Ifeed, m)
	_, err = ParseModality("gain")
	assert.Error(t, err)

	p := DefaultParams(Disc).WithThreshold(8).WithNoiseFactor(2)
	assert.Equal(t, 8.0, p.MinThreshold)
	assert.Equal(t, 2.0, p.FactorStdNoise)
	assert.NoError(t, p.Validate())
	assert.Error(t, p.WithThreshold(-1).Validate())
	assert.Zero(t, DefaultParams(Ifeed).FactorStdNoise)
}
