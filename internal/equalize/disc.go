package equalize

import (
	"fmt"
	"math"

	"pixel-equalizer/internal/scan"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// MinValidThresholdPosition is the lowest chip optimum, in setting steps,
// that counts toward the DISC consensus. Lower optima mean none was found.
const MinValidThresholdPosition = 10

// Masked marks a pixel without a usable setting in an equalized vector.
const Masked = -1

// OptimalThresholdPosition estimates a chip's optimal threshold position: the
// trimmed mean of the pixels' noise edges, where a pixel's edge is the highest
// setting at which its mean count exceeds minThreshold. A chip without any
// responding pixel yields 0.
func OptimalThresholdPosition(cs *scan.ChipScan, minThreshold, pctHigh, pctLow float64) float64 {
	return optimalThresholdPosition(measure(cs), cs.Pixels, minThreshold, pctHigh, pctLow)
}

func optimalThresholdPosition(r response, pixels int, minThreshold, pctHigh, pctLow float64) float64 {
	edges := make([]float64, 0, pixels)
	for p := 0; p < pixels; p++ {
		if e := r.edge(p, minThreshold, 0); e >= 0 {
			edges = append(edges, float64(e))
		}
	}
	return trimmedMean(edges, pctHigh, pctLow)
}

// DiscConsensus averages the chip optima of at least
// MinValidThresholdPosition, truncated to a setting index. With no valid chip
// it returns 0.
func DiscConsensus(optima []float64) int {
	var sum float64
	var n int
	for _, o := range optima {
		if o >= MinValidThresholdPosition {
			sum += o
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(sum / float64(n))
}

// Step3 equalizes the pixels of one chip to the threshold position target.
// Each responding pixel gets the setting whose DAC code mirrors its noise edge
// code around the target code, so edges above the target are trimmed down and
// edges below are trimmed up. Pixels without an edge, or whose mirrored code
// lies more than one DAC step outside the swept codes, are Masked.
//
// A DAC row whose length differs from the chip's setting count is a fatal
// mismatch between scan and DAC data; it is logged and returned as
// scan.ErrIndex.
func Step3(cs *scan.ChipScan, dacRow []float64, minThreshold, factorStdNoise float64, target int, logger *zap.Logger) ([]int, error) {
	return step3(measure(cs), cs, dacRow, minThreshold, factorStdNoise, target, logger)
}

func step3(r response, cs *scan.ChipScan, dacRow []float64, minThreshold, k float64, target int, logger *zap.Logger) ([]int, error) {
	if len(dacRow) != cs.Settings {
		if logger != nil {
			logger.Error("dac table does not match scan",
				zap.Int("expected_settings", cs.Settings),
				zap.Int("actual_settings", len(dacRow)))
		}
		return nil, fmt.Errorf("%w: dac row has %d settings, expected %d", scan.ErrIndex, len(dacRow), cs.Settings)
	}

	target = min(max(target, 0), cs.Settings-1)
	t := dacRow[target]
	lo, hi := floats.Min(dacRow), floats.Max(dacRow)
	var step float64
	if cs.Settings > 1 {
		step = (hi - lo) / float64(cs.Settings-1)
	}

	out := make([]int, cs.Pixels)
	for p := range out {
		e := r.edge(p, minThreshold, k)
		if e < 0 {
			out[p] = Masked
			continue
		}
		want := 2*t - dacRow[e]
		if want < lo-step || want > hi+step {
			out[p] = Masked
			continue
		}
		out[p] = nearest(dacRow, want)
	}
	return out, nil
}

// nearest returns the index of the value in v closest to want; ties resolve
// to the lower index.
func nearest(v []float64, want float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, x := range v {
		if d := math.Abs(x - want); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
