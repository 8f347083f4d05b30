package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"pixel-equalizer/internal/equalize"
	"pixel-equalizer/internal/export"
	"pixel-equalizer/internal/project"
	"pixel-equalizer/internal/scan"
	"pixel-equalizer/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// equalizeFlags are the per-run options of the equalize command.
type equalizeFlags struct {
	scanPath     string
	projectPath  string
	modality     string
	minThreshold float64
	pctHigh      float64
	pctLow       float64
	noiseFactor  float64
	workers      int
	outDir       string
	heatMap      bool
	save         bool
}

func (c *cli) newEqualizeCmd() *cobra.Command {
	f := &equalizeFlags{}
	cmd := &cobra.Command{
		Use:   "equalize",
		Short: "Equalize a DISC or IFEED calibration scan",
		Long: `Computes per-pixel settings, range flags and mask flags for every chip of a
calibration scan. Parameters default to the config file and can be
overridden per run. With --project the scan path, modality, parameters and
output directory come from a .pxproj job manifest.

Example:
  pixeq equalize --scan thr.pxscan --pct-high 5 --pct-low 5 --out maps --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runEqualize(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.scanPath, "scan", "", "Scan file ("+scan.FileExt+")")
	cmd.Flags().StringVar(&f.projectPath, "project", "", "Job manifest ("+project.FileExt+")")
	cmd.Flags().StringVar(&f.modality, "modality", "", "disc or ifeed (default: from the scan file)")
	cmd.Flags().Float64Var(&f.minThreshold, "min-threshold", 0, "Mean count a pixel must exceed")
	cmd.Flags().Float64Var(&f.pctHigh, "pct-high", 0, "Upper trim percentile / IFEED upper band")
	cmd.Flags().Float64Var(&f.pctLow, "pct-low", 0, "Lower trim percentile / IFEED lower band")
	cmd.Flags().Float64Var(&f.noiseFactor, "noise-factor", 0, "DISC noise standard deviations")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Chips equalized concurrently (default: config)")
	cmd.Flags().StringVar(&f.outDir, "out", "", "Write pixel maps to this directory")
	cmd.Flags().BoolVar(&f.heatMap, "heatmap", false, "Also write color heat maps")
	cmd.Flags().BoolVar(&f.save, "save", false, "Record the run in the history database")
	return cmd
}

func (c *cli) runEqualize(cmd *cobra.Command, f *equalizeFlags) error {
	ctx := cmd.Context()

	var proj *project.File
	scanPath, outDir := f.scanPath, f.outDir
	if f.projectPath != "" {
		p, err := project.Load(f.projectPath)
		if err != nil {
			return fmt.Errorf("failed to load project: %w", err)
		}
		proj = p
		if scanPath == "" {
			scanPath = p.GetScanPath(f.projectPath)
		}
		if outDir == "" {
			outDir = p.GetOutputDir(f.projectPath)
		}
	}
	if scanPath == "" {
		return fmt.Errorf("no scan given: use --scan or --project")
	}

	sf, err := scan.ReadFile(scanPath)
	if err != nil {
		return err
	}

	modName := f.modality
	if modName == "" && proj != nil {
		modName = proj.Modality
	}
	if modName == "" {
		modName = sf.Modality
	}
	mod, err := equalize.ParseModality(modName)
	if err != nil {
		return err
	}

	params := c.cfg.Params(mod)
	if proj != nil {
		params = proj.Params
	}
	flags := cmd.Flags()
	if flags.Changed("min-threshold") {
		params = params.WithThreshold(f.minThreshold)
	}
	if flags.Changed("pct-high") {
		params.PctHigh = f.pctHigh
	}
	if flags.Changed("pct-low") {
		params.PctLow = f.pctLow
	}
	if flags.Changed("noise-factor") {
		params = params.WithNoiseFactor(f.noiseFactor)
	}

	workers := c.cfg.Pipeline.Workers
	if f.workers > 0 {
		workers = f.workers
	}

	var specName string
	if proj != nil {
		specName = proj.ChipSpec
	}
	res, err := c.equalize(ctx, mod, sf, specName, params, workers)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)

	if outDir != "" {
		paths, err := export.WriteResult(outDir, res, c.exportOptions(f.heatMap))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d maps to %s\n", len(paths), outDir)
	}

	if f.save {
		run, err := c.record(ctx, scanPath, params, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved run %s\n", run.ID)
		if proj != nil {
			proj.LastRunID = run.ID
			if err := proj.Save(f.projectPath); err != nil {
				return fmt.Errorf("failed to update project: %w", err)
			}
		}
	}
	return nil
}

// equalize runs the pipeline on a loaded scan. The chip grid comes from
// specName when set, otherwise from the configured spec.
func (c *cli) equalize(ctx context.Context, mod equalize.Modality, sf *scan.File, specName string, params equalize.Params, workers int) (*equalize.Result, error) {
	spec, err := c.cfg.ChipSpecNamed(specName)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("equalizing scan",
		zap.Stringer("modality", mod),
		zap.Stringer("shape", sf.Cube.Shape()),
		zap.String("chip_spec", spec.Name()),
		zap.Int("workers", workers))

	return equalize.Run(ctx, mod, sf.Cube, sf.DAC, params, equalize.Options{
		Grid:    spec.Grid(),
		Workers: workers,
		Logger:  c.logger,
	})
}

// record stores res in the history database.
func (c *cli) record(ctx context.Context, source string, params equalize.Params, res *equalize.Result) (store.Run, error) {
	s, err := c.openStore()
	if err != nil {
		return store.Run{}, err
	}
	defer s.Close()

	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	run, err := s.SaveRun(ctx, store.Run{Params: params, Source: source}, res)
	if err != nil {
		return run, fmt.Errorf("failed to save run: %w", err)
	}
	c.logger.Info("run saved", zap.String("run_id", run.ID))
	return run, nil
}

func (c *cli) exportOptions(heatMap bool) export.Options {
	return export.Options{
		Format:  c.cfg.Export.Format,
		Scale:   c.cfg.Export.Scale,
		HeatMap: heatMap,
	}
}

func formatConsensus(res *equalize.Result) string {
	if math.IsNaN(res.Consensus) {
		return "none"
	}
	if res.Modality == equalize.Disc {
		return fmt.Sprintf("%d", int(res.Consensus))
	}
	return fmt.Sprintf("%.2f", res.Consensus)
}

func printResult(w io.Writer, res *equalize.Result) {
	masked, ranged := res.Counts()
	total := res.Chips() * res.Grid.Pixels()
	fmt.Fprintf(w, "Modality:   %s\n", res.Modality)
	fmt.Fprintf(w, "Chips:      %d (%s grid)\n", res.Chips(), res.Grid)
	fmt.Fprintf(w, "Consensus:  %s\n", formatConsensus(res))
	fmt.Fprintf(w, "Masked:     %d / %d\n", masked, total)
	fmt.Fprintf(w, "Ranged:     %d / %d\n", ranged, total)
	for c, o := range res.ChipOptima {
		fmt.Fprintf(w, "  chip %2d optimum %.2f\n", c, o)
	}
}
