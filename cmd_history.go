package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"pixel-equalizer/internal/equalize"
	"pixel-equalizer/internal/export"

	"github.com/spf13/cobra"
)

func (c *cli) newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded equalization runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODALITY\tCHIPS\tCONSENSUS\tMASKED\tRANGED\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Modality, r.Chips,
					formatConsensus(&equalize.Result{Modality: r.Modality, Consensus: r.Consensus}),
					r.Masked, r.Ranged, r.Source)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}

func (c *cli) newShowCmd() *cobra.Command {
	var grid bool
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			run, res, err := s.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run:        %s\n", run.ID)
			fmt.Fprintf(w, "Created:    %s\n", run.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(w, "Source:     %s\n", run.Source)
			fmt.Fprintf(w, "Params:     min_threshold=%g pct_high=%g pct_low=%g factor_std_noise=%g\n",
				run.Params.MinThreshold, run.Params.PctHigh, run.Params.PctLow, run.Params.FactorStdNoise)
			printResult(w, res)
			if grid {
				printGrids(w, res)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&grid, "grid", false, "Print every chip's settings grid")
	return cmd
}

// printGrids prints settings per chip; masked pixels show as "--" and
// ranged pixels carry a trailing "*".
func printGrids(w io.Writer, res *equalize.Result) {
	for c := range res.Settings {
		fmt.Fprintf(w, "\nchip %d\n", c)
		for i := range res.Settings[c] {
			for j, v := range res.Settings[c][i] {
				switch {
				case res.Mask[c][i][j]:
					fmt.Fprint(w, "  -- ")
				case res.Range[c][i][j]:
					fmt.Fprintf(w, " %3d*", v)
				default:
					fmt.Fprintf(w, " %3d ", v)
				}
			}
			fmt.Fprintln(w)
		}
	}
}

func (c *cli) newExportCmd() *cobra.Command {
	var outDir string
	var heatMap bool
	cmd := &cobra.Command{
		Use:   "export RUN_ID",
		Short: "Write pixel maps of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			_, res, err := s.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			paths, err := export.WriteResult(outDir, res, c.exportOptions(heatMap))
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory")
	cmd.Flags().BoolVar(&heatMap, "heatmap", false, "Also write color heat maps")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
