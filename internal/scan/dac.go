package scan

import "fmt"

// DACTable gives the DAC code swept at every setting index, per chip.
// It is indexed [setting][chip] and immutable once built.
type DACTable struct {
	settings int
	chips    int
	data     []uint32
}

// NewDACTable copies row-major [setting][chip] codes into a new table.
func NewDACTable(settings, chips int, data []uint32) (*DACTable, error) {
	if settings <= 0 || chips <= 0 {
		return nil, fmt.Errorf("dac table shape (%d, %d) must be positive", settings, chips)
	}
	if len(data) != settings*chips {
		return nil, fmt.Errorf("%w: dac shape (%d, %d) needs %d codes, got %d", ErrIndex, settings, chips, settings*chips, len(data))
	}
	d := &DACTable{settings: settings, chips: chips, data: make([]uint32, len(data))}
	copy(d.data, data)
	return d, nil
}

// Dims returns the number of settings and chips.
func (d *DACTable) Dims() (settings, chips int) {
	return d.settings, d.chips
}

// At returns the DAC code swept at setting s on chip c.
func (d *DACTable) At(s, c int) uint32 {
	return d.data[s*d.chips+c]
}

// ChipRow returns chip c's codes across all settings.
func (d *DACTable) ChipRow(c int) []float64 {
	row := make([]float64, d.settings)
	for s := range row {
		row[s] = float64(d.At(s, c))
	}
	return row
}

// Invariant returns the codes of the first chip, for sweeps whose DAC values
// do not depend on the chip.
func (d *DACTable) Invariant() []float64 {
	return d.ChipRow(0)
}

// Raw returns the backing codes in table order.
func (d *DACTable) Raw() []uint32 {
	out := make([]uint32, len(d.data))
	copy(out, d.data)
	return out
}

// CheckDAC verifies that d describes the sweep recorded in c: one row per
// cube setting and one column per cube chip.
func CheckDAC(c *Cube, d *DACTable) error {
	shape := c.Shape()
	if d.chips != shape.Chips || d.settings != shape.Settings {
		return fmt.Errorf("%w: dac table shape (%d, %d), expected (%d, %d)",
			ErrIndex, d.settings, d.chips, shape.Settings, shape.Chips)
	}
	return nil
}
