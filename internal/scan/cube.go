// Package scan holds raw calibration scan data: the count cube acquired while
// sweeping a setting, and the DAC table describing the sweep.
package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrIndex is returned when scan and DAC data disagree in shape.
	ErrIndex = errors.New("index error")

	// ErrBadFile is returned when a scan file cannot be decoded.
	ErrBadFile = errors.New("malformed scan file")
)

// Shape gives the extent of each cube axis.
type Shape struct {
	Settings int
	Samples  int
	Chips    int
	Pixels   int
}

// Len returns the number of elements in a cube of this shape.
func (s Shape) Len() int {
	return s.Settings * s.Samples * s.Chips * s.Pixels
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.Settings, s.Samples, s.Chips, s.Pixels)
}

func (s Shape) validate() error {
	if s.Settings <= 0 || s.Samples <= 0 || s.Chips <= 0 || s.Pixels <= 0 {
		return fmt.Errorf("cube shape %s must be positive on every axis", s)
	}
	return nil
}

// Cube is a calibration scan indexed [setting][sample][chip][pixel].
// It is immutable once built.
type Cube struct {
	shape Shape
	data  []uint32
}

// NewCube copies data, laid out row-major in [setting][sample][chip][pixel]
// order, into a new cube.
func NewCube(shape Shape, data []uint32) (*Cube, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("%w: cube shape %s needs %d counts, got %d", ErrIndex, shape, shape.Len(), len(data))
	}
	c := &Cube{shape: shape, data: make([]uint32, len(data))}
	copy(c.data, data)
	return c, nil
}

// Shape returns the cube dimensions.
func (c *Cube) Shape() Shape {
	return c.shape
}

func (c *Cube) index(setting, sample, chip, pixel int) int {
	s := c.shape
	return ((setting*s.Samples+sample)*s.Chips+chip)*s.Pixels + pixel
}

// At returns the count for one acquisition.
func (c *Cube) At(setting, sample, chip, pixel int) uint32 {
	return c.data[c.index(setting, sample, chip, pixel)]
}

// Chip extracts chip i reoriented to [setting][pixel][sample].
func (c *Cube) Chip(i int) *ChipScan {
	s := c.shape
	cs := &ChipScan{
		Settings: s.Settings,
		Pixels:   s.Pixels,
		Samples:  s.Samples,
		data:     make([]uint32, s.Settings*s.Pixels*s.Samples),
	}
	for st := 0; st < s.Settings; st++ {
		for a := 0; a < s.Samples; a++ {
			base := c.index(st, a, i, 0)
			for p := 0; p < s.Pixels; p++ {
				cs.data[(st*s.Pixels+p)*s.Samples+a] = c.data[base+p]
			}
		}
	}
	return cs
}

// ChipScan is one chip's slice of a cube, indexed [setting][pixel][sample].
type ChipScan struct {
	Settings int
	Pixels   int
	Samples  int
	data     []uint32
}

// Counts returns the samples acquired for pixel at setting. The returned
// slice aliases the scan and must not be modified.
func (s *ChipScan) Counts(setting, pixel int) []uint32 {
	off := (setting*s.Pixels + pixel) * s.Samples
	return s.data[off : off+s.Samples : off+s.Samples]
}

// Raw returns the backing counts in cube order.
func (c *Cube) Raw() []uint32 {
	out := make([]uint32, len(c.data))
	copy(out, c.data)
	return out
}
