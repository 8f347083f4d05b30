package equalize

import (
	"testing"

	"pixel-equalizer/internal/scan"

	"github.com/stretchr/testify/require"
)

const testPixels = 160

// discCube builds a threshold scan whose pixels count 50 hits per sample up to
// their noise edge 28+p%5 and nothing above it. DAC codes are 100+10*s.
func discCube(t *testing.T, chips, settings, samples int) (*scan.Cube, *scan.DACTable) {
	t.Helper()
	shape := scan.Shape{Settings: settings, Samples: samples, Chips: chips, Pixels: testPixels}
	data := make([]uint32, shape.Len())
	i := 0
	for s := 0; s < settings; s++ {
		for a := 0; a < samples; a++ {
			for c := 0; c < chips; c++ {
				for p := 0; p < testPixels; p++ {
					if s <= 28+p%5 {
						data[i] = 50
					}
					i++
				}
			}
		}
	}
	cube, err := scan.NewCube(shape, data)
	require.NoError(t, err)

	codes := make([]uint32, settings*chips)
	for s := 0; s < settings; s++ {
		for c := 0; c < chips; c++ {
			codes[s*chips+c] = uint32(100 + 10*s)
		}
	}
	dac, err := scan.NewDACTable(settings, chips, codes)
	require.NoError(t, err)
	return cube, dac
}

// ifeedCube builds a gain scan where pixel p counts (s+1)*k with
// k = 10+2*(p%5), scaled by scale. DAC codes are 8*s on every chip.
func ifeedCube(t *testing.T, chips, settings, samples int, scale float64) (*scan.Cube, *scan.DACTable) {
	t.Helper()
	shape := scan.Shape{Settings: settings, Samples: samples, Chips: chips, Pixels: testPixels}
	data := make([]uint32, shape.Len())
	i := 0
	for s := 0; s < settings; s++ {
		for a := 0; a < samples; a++ {
			for c := 0; c < chips; c++ {
				for p := 0; p < testPixels; p++ {
					k := float64(10 + 2*(p%5))
					data[i] = uint32(float64(s+1) * k * scale)
					i++
				}
			}
		}
	}
	cube, err := scan.NewCube(shape, data)
	require.NoError(t, err)

	codes := make([]uint32, settings*chips)
	for s := 0; s < settings; s++ {
		for c := 0; c < chips; c++ {
			codes[s*chips+c] = uint32(8 * s)
		}
	}
	dac, err := scan.NewDACTable(settings, chips, codes)
	require.NoError(t, err)
	return cube, dac
}

// flatCube fills every count with value.
func flatCube(t *testing.T, chips, settings, samples int, value uint32) (*scan.Cube, *scan.DACTable) {
	t.Helper()
	shape := scan.Shape{Settings: settings, Samples: samples, Chips: chips, Pixels: testPixels}
	data := make([]uint32, shape.Len())
	for i := range data {
		data[i] = value
	}
	cube, err := scan.NewCube(shape, data)
	require.NoError(t, err)
	dac, err := scan.NewDACTable(settings, chips, make([]uint32, settings*chips))
	require.NoError(t, err)
	return cube, dac
}
