package equalize

import (
	"fmt"

	"pixel-equalizer/internal/chip"
)

// FarSide names the half of the setting range considered atypical.
type FarSide int

const (
	UpperHalf FarSide = iota
	LowerHalf
)

// RangeSplit turns an equalized vector into register values, range flags and
// mask flags. The setting range is split at half = ceil(settings/2); a
// setting on the far side sets the range flag, and the value is the offset
// inside its half. Masked pixels get value 0, no range flag and the mask flag.
func RangeSplit(eq []int, settings int, far FarSide) (values []int32, ranges, masks []bool) {
	half := (settings + 1) / 2
	values = make([]int32, len(eq))
	ranges = make([]bool, len(eq))
	masks = make([]bool, len(eq))
	for i, s := range eq {
		if s < 0 {
			masks[i] = true
			continue
		}
		upper := s >= half
		if upper {
			values[i] = int32(s - half)
		} else {
			values[i] = int32(s)
		}
		ranges[i] = upper == (far == UpperHalf)
	}
	return values, ranges, masks
}

// Reshape lays a flat per-chip vector out row-major on grid.
func Reshape[T any](v []T, grid chip.Grid) ([][]T, error) {
	if len(v) != grid.Pixels() {
		return nil, fmt.Errorf("%w: %d pixels do not fill a %s grid", ErrGridMismatch, len(v), grid)
	}
	out := make([][]T, grid.Rows)
	for r := range out {
		out[r] = v[r*grid.Cols : (r+1)*grid.Cols : (r+1)*grid.Cols]
	}
	return out, nil
}
