package colorutil

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlag(t *testing.T) {
	assert.Equal(t, Black, Flag(false, false))
	assert.Equal(t, Cyan, Flag(true, false))
	assert.Equal(t, Magenta, Flag(true, true))
	assert.Equal(t, Magenta, Flag(false, true))
}

func TestGray16(t *testing.T) {
	assert.Equal(t, color.Gray16{}, Gray16(0, 15))
	assert.Equal(t, color.Gray16{Y: 0xFFFF}, Gray16(15, 15))
	assert.Equal(t, color.Gray16{Y: 0xFFFF}, Gray16(20, 15))
	assert.Equal(t, color.Gray16{}, Gray16(-1, 15))
	assert.Equal(t, color.Gray16{}, Gray16(3, 0))
	assert.Equal(t, color.Gray16{}, Gray16(math.NaN(), 15))
	assert.Equal(t, color.Gray16{Y: 0x8000}, Gray16(1, 2))
}

func TestRamp(t *testing.T) {
	assert.Equal(t, Blue, Ramp(0))
	assert.Equal(t, Red, Ramp(1))
	assert.Equal(t, Red, Ramp(2))
	assert.Equal(t, color.RGBA{R: 128, G: 0, B: 128, A: 255}, Ramp(0.5))
}
