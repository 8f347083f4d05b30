package register

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFieldOutOfRange is returned when a field position lies outside the matrix.
	ErrFieldOutOfRange = errors.New("field position out of range")

	// ErrUnknownComparator is returned for a comparator outside the supported set.
	ErrUnknownComparator = errors.New("unknown comparator")

	// ErrVoltageOutOfRange is returned when a DAC voltage is outside the chip reference range.
	ErrVoltageOutOfRange = errors.New("voltage outside dac reference range")

	// ErrEmptyRegister is returned when a register would have no columns or rows.
	ErrEmptyRegister = errors.New("register dimensions must be positive")
)

// ReplaceValues rewrites row pos of m: every element e with
// cmp.Match(e, oldValue) becomes newValue. The mutated matrix is returned.
// Other rows are left untouched.
func ReplaceValues(m *mat.Dense, pos int, oldValue, newValue float64, cmp Comparator) (*mat.Dense, error) {
	if cmp < GreaterEqual || cmp > Equal {
		return m, fmt.Errorf("%w: %d", ErrUnknownComparator, int(cmp))
	}
	r, c := m.Dims()
	if pos < 0 || pos >= r {
		return m, fmt.Errorf("%w: row %d of %dx%d matrix", ErrFieldOutOfRange, pos, r, c)
	}
	for j := 0; j < c; j++ {
		if cmp.Match(m.At(pos, j), oldValue) {
			m.Set(pos, j, newValue)
		}
	}
	return m, nil
}

// PixelRegister holds the per-pixel configuration of one chip: one row per
// Field, one column per pixel.
type PixelRegister struct {
	*mat.Dense
}

// NewPixelRegister creates a zeroed register for a chip with the given pixel count.
func NewPixelRegister(pixels int) (*PixelRegister, error) {
	if pixels <= 0 {
		return nil, fmt.Errorf("%w: %d pixels", ErrEmptyRegister, pixels)
	}
	return &PixelRegister{Dense: mat.NewDense(NumFields, pixels, nil)}, nil
}

// Pixels returns the number of pixel columns.
func (r *PixelRegister) Pixels() int {
	_, c := r.Dims()
	return c
}

// Replace applies ReplaceValues to the row holding f.
func (r *PixelRegister) Replace(f Field, oldValue, newValue float64, cmp Comparator) error {
	pos, err := f.Position()
	if err != nil {
		return err
	}
	_, err = ReplaceValues(r.Dense, pos, oldValue, newValue, cmp)
	return err
}

// Read returns a copy of the row holding f.
func (r *PixelRegister) Read(f Field) ([]float64, error) {
	pos, err := f.Position()
	if err != nil {
		return nil, err
	}
	rows, _ := r.Dims()
	if pos >= rows {
		return nil, fmt.Errorf("%w: %s", ErrFieldOutOfRange, f)
	}
	return mat.Row(nil, pos, r.Dense), nil
}

// set overwrites the whole field with v.
func (r *PixelRegister) set(f Field, v float64) error {
	return r.Replace(f, 0, v, GreaterEqual)
}

func (r *PixelRegister) setChannel(field func(int) (Field, error), ch int, v float64) error {
	f, err := field(ch)
	if err != nil {
		return err
	}
	return r.set(f, v)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// MaskPixels sets the mask bit of channel ch on every pixel.
func (r *PixelRegister) MaskPixels(ch int) error { return r.setChannel(Mask, ch, 1) }

// UnmaskPixels clears the mask bit of channel ch on every pixel.
func (r *PixelRegister) UnmaskPixels(ch int) error { return r.setChannel(Mask, ch, 0) }

// EnableTestPulse enables test-pulse injection on every pixel.
func (r *PixelRegister) EnableTestPulse() error { return r.set(TestPulseEnable, 1) }

// DisableTestPulse disables test-pulse injection on every pixel.
func (r *PixelRegister) DisableTestPulse() error { return r.set(TestPulseEnable, 0) }

// SetThreshold writes the discriminator threshold of channel ch.
func (r *PixelRegister) SetThreshold(ch int, value int) error {
	return r.setChannel(Value, ch, float64(value))
}

// SetPolarity sets or clears the polarity flag of channel ch.
func (r *PixelRegister) SetPolarity(ch int, on bool) error {
	return r.setChannel(Polarity, ch, boolValue(on))
}

// SetRange sets or clears the range flag of channel ch.
func (r *PixelRegister) SetRange(ch int, on bool) error {
	return r.setChannel(Range, ch, boolValue(on))
}

// SetFeedRange sets or clears the shared feed range flag.
func (r *PixelRegister) SetFeedRange(on bool) error { return r.set(FeedRange, boolValue(on)) }

// SetFeedValue writes the shared feed value.
func (r *PixelRegister) SetFeedValue(value int) error { return r.set(FeedValue, float64(value)) }

// ApplyEqualization writes one chip's equalization output into the value,
// range and mask fields of channel ch. Grids are read row-major, so pixel
// (i, j) of a rows x cols grid lands in column i*cols+j.
func (r *PixelRegister) ApplyEqualization(ch int, settings [][]int32, ranges, masks [][]bool) error {
	vf, err := Value(ch)
	if err != nil {
		return err
	}
	rf, _ := Range(ch)
	mf, _ := Mask(ch)

	n := 0
	for i := range settings {
		if len(ranges) <= i || len(masks) <= i ||
			len(ranges[i]) != len(settings[i]) || len(masks[i]) != len(settings[i]) {
			return fmt.Errorf("equalization grids differ in shape at row %d", i)
		}
		n += len(settings[i])
	}
	if n != r.Pixels() {
		return fmt.Errorf("%w: grid holds %d pixels, register has %d", ErrFieldOutOfRange, n, r.Pixels())
	}

	vp, _ := vf.Position()
	rp, _ := rf.Position()
	mp, _ := mf.Position()
	// Values differ per pixel, so write cells directly rather than through
	// ReplaceValues.
	p := 0
	for i := range settings {
		for j := range settings[i] {
			r.Set(vp, p, float64(settings[i][j]))
			r.Set(rp, p, boolValue(ranges[i][j]))
			r.Set(mp, p, boolValue(masks[i][j]))
			p++
		}
	}
	return nil
}
