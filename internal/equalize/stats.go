package equalize

import (
	"sort"

	"pixel-equalizer/internal/scan"

	"gonum.org/v1/gonum/stat"
)

// response holds per-setting, per-pixel sample statistics of one chip.
type response struct {
	mean [][]float64 // [setting][pixel]
	std  [][]float64 // [setting][pixel], population
}

func measure(cs *scan.ChipScan) response {
	r := response{
		mean: make([][]float64, cs.Settings),
		std:  make([][]float64, cs.Settings),
	}
	buf := make([]float64, cs.Samples)
	for s := 0; s < cs.Settings; s++ {
		r.mean[s] = make([]float64, cs.Pixels)
		r.std[s] = make([]float64, cs.Pixels)
		for p := 0; p < cs.Pixels; p++ {
			for i, v := range cs.Counts(s, p) {
				buf[i] = float64(v)
			}
			r.mean[s][p], r.std[s][p] = stat.PopMeanStdDev(buf, nil)
		}
	}
	return r
}

// signal reports whether pixel p responds at setting s: its mean must clear
// minThreshold by k standard deviations. Counts exactly at the threshold do not.
func (r response) signal(s, p int, minThreshold, k float64) bool {
	return r.mean[s][p]-k*r.std[s][p] > minThreshold
}

// edge returns the highest setting at which pixel p responds, or -1.
func (r response) edge(p int, minThreshold, k float64) int {
	for s := len(r.mean) - 1; s >= 0; s-- {
		if r.signal(s, p, minThreshold, k) {
			return s
		}
	}
	return -1
}

// trimmedMean averages the values of x lying between its pctLow-th and
// (100-pctHigh)-th percentiles. x is sorted in place. Empty input yields 0.
func trimmedMean(x []float64, pctHigh, pctLow float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sort.Float64s(x)
	lo := stat.Quantile(clamp01(pctLow/100), stat.Empirical, x, nil)
	hi := stat.Quantile(clamp01(1-pctHigh/100), stat.Empirical, x, nil)
	if lo > hi {
		lo, hi = hi, lo
	}
	var sum float64
	var n int
	for _, v := range x {
		if v >= lo && v <= hi {
			sum += v
			n++
		}
	}
	return sum / float64(n)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
