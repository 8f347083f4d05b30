// Command scangen writes a synthetic calibration scan for exercising pixeq.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"pixel-equalizer/internal/chip"
	"pixel-equalizer/internal/equalize"
	"pixel-equalizer/internal/scan"
)

// options describe the synthetic detector.
type options struct {
	modality equalize.Modality
	chips    int
	settings int
	samples  int
	pixels   int
	edge     int // DISC: lowest pixel edge setting
	spread   int // DISC: edge spread; IFEED: gain spread
	signal   uint32
	noise    uint32
	seed     uint64
}

func main() {
	out := flag.String("out", "", "Output scan file (.pxscan)")
	mod := flag.String("modality", "disc", "Scan modality: disc or ifeed")
	chips := flag.Int("chips", 4, "Number of chips")
	settings := flag.Int("settings", 64, "Number of swept settings")
	samples := flag.Int("samples", 8, "Samples per setting")
	spec := flag.String("spec", chip.DefaultSpecName, "Chip spec providing pixels per chip")
	edge := flag.Int("edge", 28, "DISC: lowest pixel edge setting")
	spread := flag.Int("spread", 6, "Spread of pixel edges (DISC) or gains (IFEED)")
	seed := flag.Uint64("seed", 1, "Random seed")
	flag.Parse()

	if *out == "" {
		fmt.Println("Usage: scangen -out <file.pxscan> [-modality disc|ifeed] [-chips 4] [-settings 64] [-samples 8]")
		os.Exit(1)
	}

	m, err := equalize.ParseModality(*mod)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	s := chip.GetSpec(*spec)
	if s == nil {
		fmt.Fprintf(os.Stderr, "Unknown chip spec %q (known: %v)\n", *spec, chip.ListSpecs())
		os.Exit(1)
	}

	opts := options{
		modality: m,
		chips:    *chips,
		settings: *settings,
		samples:  *samples,
		pixels:   s.Grid().Pixels(),
		edge:     *edge,
		spread:   *spread,
		signal:   50,
		noise:    3,
		seed:     *seed,
	}
	f, err := generate(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate scan: %v\n", err)
		os.Exit(1)
	}
	if err := scan.WriteFile(*out, f); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write scan: %v\n", err)
		os.Exit(1)
	}

	shape := f.Cube.Shape()
	fmt.Printf("Wrote %s scan %s to %s\n", f.Modality, shape, *out)
}

// generate builds a scan from a simple detector model. DISC pixels count
// signal up to their edge setting and noise above it; the DAC code rises by
// 10 per setting with a per-chip offset. IFEED pixels respond linearly in the
// setting with a per-pixel gain over a DAC code of 8 per setting.
func generate(o options) (*scan.File, error) {
	if o.spread < 1 {
		o.spread = 1
	}
	shape := scan.Shape{Settings: o.settings, Samples: o.samples, Chips: o.chips, Pixels: o.pixels}
	if o.settings <= 0 || o.samples <= 0 || o.chips <= 0 || o.pixels <= 0 {
		return nil, fmt.Errorf("invalid scan shape %s", shape)
	}
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9E3779B97F4A7C15))
	jitter := func(n uint32) uint32 {
		if n == 0 {
			return 0
		}
		return uint32(rng.IntN(int(n) + 1))
	}

	data := make([]uint32, shape.Len())
	i := 0
	for s := 0; s < o.settings; s++ {
		for k := 0; k < o.samples; k++ {
			for c := 0; c < o.chips; c++ {
				for p := 0; p < o.pixels; p++ {
					var v uint32
					switch o.modality {
					case equalize.Disc:
						if s <= o.edge+(p*7+c*3)%o.spread {
							v = o.signal + jitter(o.noise)
						} else {
							v = jitter(o.noise)
						}
					case equalize.Ifeed:
						gain := uint32(10 + (p*3+c)%o.spread)
						v = uint32(s+1)*gain + jitter(o.noise)
					}
					data[i] = v
					i++
				}
			}
		}
	}
	cube, err := scan.NewCube(shape, data)
	if err != nil {
		return nil, err
	}

	dacData := make([]uint32, o.settings*o.chips)
	for s := 0; s < o.settings; s++ {
		for c := 0; c < o.chips; c++ {
			switch o.modality {
			case equalize.Disc:
				dacData[s*o.chips+c] = uint32(100 + 10*s + c)
			case equalize.Ifeed:
				dacData[s*o.chips+c] = uint32(8 * s)
			}
		}
	}
	dac, err := scan.NewDACTable(o.settings, o.chips, dacData)
	if err != nil {
		return nil, err
	}

	return &scan.File{Modality: o.modality.String(), Cube: cube, DAC: dac}, nil
}
