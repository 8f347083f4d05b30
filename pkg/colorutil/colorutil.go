// Package colorutil provides shared colors for pixel map rendering.
package colorutil

import (
	"image/color"
	"math"
)

// Flag map colors.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Flag returns the map color of a pixel. Masked wins over ranged.
func Flag(ranged, masked bool) color.RGBA {
	switch {
	case masked:
		return Magenta
	case ranged:
		return Cyan
	default:
		return Black
	}
}

// Gray16 maps v in [0, max] to a 16-bit gray level, clamping outside values.
func Gray16(v, max float64) color.Gray16 {
	if max <= 0 || math.IsNaN(v) {
		return color.Gray16{}
	}
	t := v / max
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return color.Gray16{Y: uint16(math.Round(t * 0xFFFF))}
}

// Ramp interpolates from Blue (t=0) to Red (t=1).
func Ramp(t float64) color.RGBA {
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return color.RGBA{
		R: lerp(Blue.R, Red.R),
		G: lerp(Blue.G, Red.G),
		B: lerp(Blue.B, Red.B),
		A: 255,
	}
}
