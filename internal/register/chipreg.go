package register

import (
	"fmt"
	"math"

	"pixel-equalizer/internal/chip"

	"gonum.org/v1/gonum/mat"
)

// DAC code transform constants.
const (
	dacOffsetVolts = 0.75
	dacFullScale   = 0x7FF
)

// DACCode converts a voltage to a chip DAC code: (v - 0.75) * 0x7FF, truncated.
func DACCode(voltage float64) int {
	return int((voltage - dacOffsetVolts) * dacFullScale)
}

// ChipRegister holds per-chip DAC settings: one row per DAC channel, one
// column per chip.
type ChipRegister struct {
	*mat.Dense
	ref chip.VoltageRange
}

// NewChipRegister creates a zeroed chip register sized from spec.
func NewChipRegister(spec chip.Spec, chips int) (*ChipRegister, error) {
	if chips <= 0 || spec.DACChannels() <= 0 {
		return nil, fmt.Errorf("%w: %d channels x %d chips", ErrEmptyRegister, spec.DACChannels(), chips)
	}
	return &ChipRegister{
		Dense: mat.NewDense(spec.DACChannels(), chips, nil),
		ref:   spec.Reference(),
	}, nil
}

// Code returns the DAC code of channel ch on chip c.
func (r *ChipRegister) Code(ch, c int) (int, error) {
	rows, cols := r.Dims()
	if ch < 0 || ch >= rows || c < 0 || c >= cols {
		return 0, fmt.Errorf("%w: channel %d chip %d of %dx%d", ErrFieldOutOfRange, ch, c, rows, cols)
	}
	return int(r.At(ch, c)), nil
}

// SetChipDAC converts voltage to a DAC code and writes it to channel ch of
// every chip in r.
func SetChipDAC(r *ChipRegister, ch int, voltage float64) error {
	if math.IsNaN(voltage) || !r.ref.Contains(voltage) {
		return fmt.Errorf("%w: %.4f V not in [%.2f, %.2f]", ErrVoltageOutOfRange, voltage, r.ref.Min, r.ref.Max)
	}
	_, err := ReplaceValues(r.Dense, ch, 0, float64(DACCode(voltage)), GreaterEqual)
	return err
}
