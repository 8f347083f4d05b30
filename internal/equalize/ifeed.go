package equalize

import (
	"fmt"
	"math"

	"pixel-equalizer/internal/scan"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// MinValidGain is the chip optimum, in counts, at or below which a chip is
// too noisy to count toward the IFEED consensus.
const MinValidGain = 100

// OptimalGain estimates a chip's optimal gain: the trimmed mean of the
// pixels' peak responses, counting only settings whose mean count exceeds
// minThreshold. A chip without any responding pixel yields 0.
func OptimalGain(cs *scan.ChipScan, minThreshold, pctHigh, pctLow float64) float64 {
	return optimalGain(measure(cs), cs.Pixels, minThreshold, pctHigh, pctLow)
}

func optimalGain(r response, pixels int, minThreshold, pctHigh, pctLow float64) float64 {
	gains := make([]float64, 0, pixels)
	for p := 0; p < pixels; p++ {
		peak, ok := 0.0, false
		for s := range r.mean {
			if r.signal(s, p, minThreshold, 0) && r.mean[s][p] > peak {
				peak, ok = r.mean[s][p], true
			}
		}
		if ok {
			gains = append(gains, peak)
		}
	}
	return trimmedMean(gains, pctHigh, pctLow)
}

// IfeedConsensus averages the chip optima above MinValidGain. With no valid
// chip the result is NaN; there is deliberately no fallback here, callers
// detect "no usable chip" through the NaN.
func IfeedConsensus(optima []float64) float64 {
	valid := make([]float64, 0, len(optima))
	for _, o := range optima {
		if o > MinValidGain {
			valid = append(valid, o)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	return stat.Mean(valid, nil)
}

// Step1 equalizes the pixels of one chip to the consensus gain. Each pixel
// gets the responding setting whose mean count is nearest gain, ties going to
// the lower DAC code. Pixels are Masked when gain is NaN, when they never
// respond, or when their best response falls outside
// [gain*(1-pctLow/100), gain*(1+pctHigh/100)].
func Step1(cs *scan.ChipScan, dac []float64, minThreshold, pctHigh, pctLow, gain float64, logger *zap.Logger) ([]int, error) {
	return step1(measure(cs), cs, dac, minThreshold, pctHigh, pctLow, gain, logger)
}

func step1(r response, cs *scan.ChipScan, dac []float64, minThreshold, pctHigh, pctLow, gain float64, logger *zap.Logger) ([]int, error) {
	if len(dac) != cs.Settings {
		if logger != nil {
			logger.Error("dac table does not match scan",
				zap.Int("expected_settings", cs.Settings),
				zap.Int("actual_settings", len(dac)))
		}
		return nil, fmt.Errorf("%w: dac array has %d settings, expected %d", scan.ErrIndex, len(dac), cs.Settings)
	}

	out := make([]int, cs.Pixels)
	if math.IsNaN(gain) {
		for p := range out {
			out[p] = Masked
		}
		return out, nil
	}

	bandLo := gain * (1 - pctLow/100)
	bandHi := gain * (1 + pctHigh/100)
	for p := range out {
		best, bestDist := Masked, math.Inf(1)
		for s := 0; s < cs.Settings; s++ {
			if !r.signal(s, p, minThreshold, 0) {
				continue
			}
			d := math.Abs(r.mean[s][p] - gain)
			if d < bestDist || (best >= 0 && d == bestDist && dac[s] < dac[best]) {
				best, bestDist = s, d
			}
		}
		if best == Masked || r.mean[best][p] < bandLo || r.mean[best][p] > bandHi {
			out[p] = Masked
			continue
		}
		out[p] = best
	}
	return out, nil
}
