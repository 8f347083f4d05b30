package equalize

import (
	"context"
	"errors"
	"math"
	"testing"

	"pixel-equalizer/internal/chip"
	"pixel-equalizer/internal/scan"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testDisc = Params{MinThreshold: 5, PctHigh: 10, PctLow: 10, FactorStdNoise: 3}

func TestRunDiscShapeAndValues(t *testing.T) {
	cube, dac := discCube(t, 2, 64, 4)

	res, err := RunDisc(context.Background(), cube, dac, testDisc, Options{})
	require.NoError(t, err)

	require.Equal(t, 2, res.Chips())
	assert.Equal(t, []float64{30, 30}, res.ChipOptima)
	assert.Equal(t, 30.0, res.Consensus)

	// edge 28+p%5 mirrors to setting 32-p%5 around the target 30
	wantSetting := []int32{0, 31, 30, 29, 28}
	wantRange := []bool{true, false, false, false, false}
	for c := 0; c < 2; c++ {
		require.Len(t, res.Settings[c], 8)
		for row := 0; row < 8; row++ {
			require.Len(t, res.Settings[c][row], 20)
			for col := 0; col < 20; col++ {
				p := row*20 + col
				assert.Equal(t, wantSetting[p%5], res.Settings[c][row][col], "chip %d pixel %d", c, p)
				assert.Equal(t, wantRange[p%5], res.Range[c][row][col], "chip %d pixel %d", c, p)
				assert.False(t, res.Mask[c][row][col])
			}
		}
	}
	masked, ranged := res.Counts()
	assert.Equal(t, 0, masked)
	assert.Equal(t, 64, ranged)
}

func TestRunIfeedValues(t *testing.T) {
	cube, dac := ifeedCube(t, 2, 16, 3, 1)
	p := Params{MinThreshold: 5, PctHigh: 10, PctLow: 10}

	res, err := RunIfeed(context.Background(), cube, dac, p, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 224, res.Consensus, 1e-9)

	wantMask := []bool{true, true, false, false, false}
	wantSetting := []int32{0, 0, 7, 5, 3}
	for c := 0; c < 2; c++ {
		for row := 0; row < 8; row++ {
			for col := 0; col < 20; col++ {
				px := row*20 + col
				assert.Equal(t, wantMask[px%5], res.Mask[c][row][col])
				assert.Equal(t, wantSetting[px%5], res.Settings[c][row][col])
				assert.False(t, res.Range[c][row][col])
			}
		}
	}
}

func TestRunAllCountsAtThresholdMasksEverything(t *testing.T) {
	for _, mod := range []Modality{Disc, Ifeed} {
		t.Run(mod.String(), func(t *testing.T) {
			cube, dac := flatCube(t, 2, 1, 5, 5)

			res, err := Run(context.Background(), mod, cube, dac, testDisc, Options{})
			require.NoError(t, err)

			require.Len(t, res.Settings, 2)
			for c := range res.Mask {
				require.Len(t, res.Settings[c], 8)
				for row := range res.Mask[c] {
					require.Len(t, res.Settings[c][row], 20)
					for col := range res.Mask[c][row] {
						assert.True(t, res.Mask[c][row][col])
					}
				}
			}
			assert.IsType(t, [][][]int32{}, res.Settings)
		})
	}
}

func TestRunFallbacks(t *testing.T) {
	// DISC: no chip has an optimum of at least 10, so consensus falls back to 0.
	cube, dac := flatCube(t, 3, 4, 2, 0)
	res, err := RunDisc(context.Background(), cube, dac, testDisc, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Consensus)
	assert.False(t, math.IsNaN(res.Consensus))

	// IFEED: every chip optimum is at or below 100 counts, so consensus is NaN.
	cube, dac = ifeedCube(t, 2, 16, 2, 0.4)
	res, err = RunIfeed(context.Background(), cube, dac, Params{MinThreshold: 5, PctHigh: 10, PctLow: 10}, Options{})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.Consensus))
	masked, _ := res.Counts()
	assert.Equal(t, 2*testPixels, masked)
}

func TestRunDACMismatchIsFatal(t *testing.T) {
	cube, _ := discCube(t, 2, 16, 2)
	dac, err := scan.NewDACTable(16, 3, make([]uint32, 48))
	require.NoError(t, err)

	core, logs := observer.New(zap.ErrorLevel)
	res, err := RunDisc(context.Background(), cube, dac, testDisc, Options{Logger: zap.New(core)})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, scan.ErrIndex))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "(16, 2)", fields["expected"])
	assert.Equal(t, "(16, 3)", fields["actual"])

	_, err = RunIfeed(context.Background(), cube, dac, testDisc, Options{})
	assert.ErrorIs(t, err, scan.ErrIndex)
}

func TestRunGridValidation(t *testing.T) {
	cube, dac := discCube(t, 1, 16, 1)

	_, err := RunDisc(context.Background(), cube, dac, testDisc, Options{Grid: chip.Grid{Rows: 8, Cols: 8}})
	assert.ErrorIs(t, err, ErrGridMismatch)

	res, err := RunDisc(context.Background(), cube, dac, testDisc, Options{Grid: chip.Grid{Rows: 16, Cols: 10}})
	require.NoError(t, err)
	assert.Len(t, res.Settings[0], 16)
	assert.Len(t, res.Settings[0][0], 10)
}

func TestRunIsDeterministicAcrossWorkers(t *testing.T) {
	cube, dac := discCube(t, 6, 48, 3)
	before := cube.Raw()

	first, err := RunDisc(context.Background(), cube, dac, testDisc, Options{Workers: 1})
	require.NoError(t, err)
	second, err := RunDisc(context.Background(), cube, dac, testDisc, Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := RunDisc(context.Background(), cube, dac, testDisc, Options{Workers: 4})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated run differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first, parallel); diff != "" {
		t.Errorf("parallel run differs (-sequential +parallel):\n%s", diff)
	}
	assert.Equal(t, before, cube.Raw(), "input cube was modified")
}

func TestRunRejectsBadInput(t *testing.T) {
	cube, dac := discCube(t, 1, 16, 1)

	_, err := Run(context.Background(), Modality(7), cube, dac, testDisc, Options{})
	assert.Error(t, err)

	_, err = RunDisc(context.Background(), cube, dac, testDisc.WithPercentiles(120, 0), Options{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunDisc(ctx, cube, dac, testDisc, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
