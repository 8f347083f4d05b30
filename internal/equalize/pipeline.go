// Package equalize computes per-pixel settings that equalize the response of
// a pixel detector from DISC (threshold) and IFEED (gain) calibration scans.
//
// A run reorients the scan cube per chip, estimates every chip's optimum,
// forms a cross-chip consensus, equalizes each pixel against it and lays the
// results out on the chip's physical pixel grid.
package equalize

import (
	"context"
	"errors"
	"fmt"

	"pixel-equalizer/internal/chip"
	"pixel-equalizer/internal/scan"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrGridMismatch is returned when the configured chip grid does not hold
	// exactly the scanned pixels of one chip.
	ErrGridMismatch = errors.New("pixel grid does not match pixels per chip")
)

// DefaultGrid is the 8x20 layout of the standard readout chip.
var DefaultGrid = chip.Grid{Rows: chip.PR160Rows, Cols: chip.PR160Cols}

// Options control how a run executes; they do not change its result.
type Options struct {
	Grid    chip.Grid   // Physical pixel layout; zero means DefaultGrid
	Workers int         // Chips processed concurrently; <= 0 means one
	Logger  *zap.Logger // nil disables logging
}

// Result holds the equalized settings of every chip, stacked in ascending
// chip order and laid out [chip][row][col].
type Result struct {
	Modality   Modality
	Grid       chip.Grid
	Settings   [][][]int32
	Range      [][][]bool
	Mask       [][][]bool
	ChipOptima []float64

	// Consensus is the DISC threshold position or the IFEED gain. For IFEED
	// it is NaN when no chip had a usable optimum.
	Consensus float64
}

// Chips returns the number of chips in the result.
func (r *Result) Chips() int {
	return len(r.Settings)
}

// Counts returns how many pixels are masked and how many carry a range flag.
func (r *Result) Counts() (masked, ranged int) {
	for c := range r.Mask {
		for i := range r.Mask[c] {
			for j := range r.Mask[c][i] {
				if r.Mask[c][i][j] {
					masked++
				}
				if r.Range[c][i][j] {
					ranged++
				}
			}
		}
	}
	return masked, ranged
}

// RunDisc equalizes a DISC threshold scan.
func RunDisc(ctx context.Context, cube *scan.Cube, dac *scan.DACTable, p Params, opts Options) (*Result, error) {
	return Run(ctx, Disc, cube, dac, p, opts)
}

// RunIfeed equalizes an IFEED gain scan. p.FactorStdNoise is ignored.
func RunIfeed(ctx context.Context, cube *scan.Cube, dac *scan.DACTable, p Params, opts Options) (*Result, error) {
	return Run(ctx, Ifeed, cube, dac, p, opts)
}

// chipWork carries one chip through both passes.
type chipWork struct {
	scan *scan.ChipScan
	resp response
}

// Run equalizes cube for modality mod. Inputs are not modified. A DAC table
// that does not match the cube fails with scan.ErrIndex before any chip is
// processed, so no partial result is returned.
func Run(ctx context.Context, mod Modality, cube *scan.Cube, dac *scan.DACTable, p Params, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Stringer("modality", mod))

	if mod != Disc && mod != Ifeed {
		return nil, fmt.Errorf("unknown modality %d", int(mod))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if mod == Ifeed {
		p.FactorStdNoise = 0
	}

	shape := cube.Shape()
	grid := opts.Grid
	if grid == (chip.Grid{}) {
		grid = DefaultGrid
	}
	if grid.Pixels() != shape.Pixels {
		return nil, fmt.Errorf("%w: %s grid holds %d pixels, scan has %d per chip",
			ErrGridMismatch, grid, grid.Pixels(), shape.Pixels)
	}
	if err := scan.CheckDAC(cube, dac); err != nil {
		ds, dc := dac.Dims()
		logger.Error("dac table shape does not match scan",
			zap.String("expected", fmt.Sprintf("(%d, %d)", shape.Settings, shape.Chips)),
			zap.String("actual", fmt.Sprintf("(%d, %d)", ds, dc)))
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	work := make([]chipWork, shape.Chips)
	optima := make([]float64, shape.Chips)

	// Pass 1: per-chip optimum.
	err := forEachChip(ctx, shape.Chips, workers, func(c int) error {
		cs := cube.Chip(c)
		resp := measure(cs)
		work[c] = chipWork{scan: cs, resp: resp}
		switch mod {
		case Disc:
			optima[c] = optimalThresholdPosition(resp, cs.Pixels, p.MinThreshold, p.PctHigh, p.PctLow)
		case Ifeed:
			optima[c] = optimalGain(resp, cs.Pixels, p.MinThreshold, p.PctHigh, p.PctLow)
		}
		logger.Debug("chip optimum", zap.Int("chip", c), zap.Float64("optimum", optima[c]))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var consensus float64
	var target int
	switch mod {
	case Disc:
		target = DiscConsensus(optima)
		consensus = float64(target)
	case Ifeed:
		consensus = IfeedConsensus(optima)
	}

	res := &Result{
		Modality:   mod,
		Grid:       grid,
		Settings:   make([][][]int32, shape.Chips),
		Range:      make([][][]bool, shape.Chips),
		Mask:       make([][][]bool, shape.Chips),
		ChipOptima: optima,
		Consensus:  consensus,
	}

	// Pass 2: per-pixel equalization against the consensus.
	invariant := dac.Invariant()
	err = forEachChip(ctx, shape.Chips, workers, func(c int) error {
		w := work[c]
		var eq []int
		var err error
		switch mod {
		case Disc:
			eq, err = step3(w.resp, w.scan, dac.ChipRow(c), p.MinThreshold, p.FactorStdNoise, target, logger)
		case Ifeed:
			eq, err = step1(w.resp, w.scan, invariant, p.MinThreshold, p.PctHigh, p.PctLow, consensus, logger)
		}
		if err != nil {
			return fmt.Errorf("chip %d: %w", c, err)
		}

		values, ranges, masks := RangeSplit(eq, shape.Settings, mod.farSide())
		if res.Settings[c], err = Reshape(values, grid); err != nil {
			return err
		}
		if res.Range[c], err = Reshape(ranges, grid); err != nil {
			return err
		}
		if res.Mask[c], err = Reshape(masks, grid); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	masked, ranged := res.Counts()
	logger.Info("equalization complete",
		zap.Int("chips", shape.Chips),
		zap.Float64("consensus", consensus),
		zap.Int("masked", masked),
		zap.Int("ranged", ranged))
	return res, nil
}

// forEachChip runs fn for chips 0..n-1 with at most workers in flight. fn
// writes its output into a slot indexed by chip, so completion order does not
// affect the stacking order.
func forEachChip(ctx context.Context, n, workers int, fn func(c int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < n; c++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(c)
		})
	}
	return g.Wait()
}
