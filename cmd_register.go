package main

import (
	"fmt"
	"text/tabwriter"

	"pixel-equalizer/internal/register"

	"github.com/spf13/cobra"
)

func (c *cli) newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Inspect and build register images",
	}
	cmd.AddCommand(c.newRegisterDACCmd(), c.newRegisterApplyCmd(), newRegisterFieldsCmd())
	return cmd
}

func (c *cli) newRegisterDACCmd() *cobra.Command {
	var channel, chips int
	var voltage float64
	cmd := &cobra.Command{
		Use:   "dac",
		Short: "Convert a voltage to the DAC code of a chip channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := c.cfg.ChipSpec()
			if err != nil {
				return err
			}
			if chips < 1 {
				return fmt.Errorf("--chips must be at least 1, got %d", chips)
			}
			reg, err := register.NewChipRegister(spec, chips)
			if err != nil {
				return err
			}
			if err := register.SetChipDAC(reg, channel, voltage); err != nil {
				return err
			}
			code, err := reg.Code(channel, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel %d: %.4f V -> code %d (0x%03X) on %d chips\n",
				channel, voltage, code, code, chips)
			return nil
		},
	}
	cmd.Flags().IntVar(&channel, "channel", 0, "DAC channel")
	cmd.Flags().Float64Var(&voltage, "voltage", 0, "Voltage in volts")
	cmd.Flags().IntVar(&chips, "chips", 1, "Number of chips in the register")
	_ = cmd.MarkFlagRequired("voltage")
	return cmd
}

func (c *cli) newRegisterApplyCmd() *cobra.Command {
	var channel int
	cmd := &cobra.Command{
		Use:   "apply RUN_ID",
		Short: "Write a recorded run into per-chip pixel registers",
		Long: `Builds one pixel register image per chip from a recorded run, writing the
settings, range flags and mask flags into the fields of a DAC channel, and
prints how many pixels each field enables.`,
		Args: cobra.ExactArgs(1),
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
			rangeField, err := register.Range(channel)
			if err != nil {
				return err
			}
			maskField, _ := register.Mask(channel)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "CHIP\t%s\t%s\n", rangeField, maskField)
			for chip := 0; chip < res.Chips(); chip++ {
				reg, err := register.NewPixelRegister(res.Grid.Pixels())
				if err != nil {
					return fmt.Errorf("chip %d: %w", chip, err)
				}
				if err := reg.ApplyEqualization(channel, res.Settings[chip], res.Range[chip], res.Mask[chip]); err != nil {
					return fmt.Errorf("chip %d: %w", chip, err)
				}
				ranged, err := countSet(reg, rangeField)
				if err != nil {
					return err
				}
				masked, err := countSet(reg, maskField)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\n", chip, ranged, masked)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&channel, "channel", 0, "DAC channel receiving the settings")
	return cmd
}

func countSet(reg *register.PixelRegister, f register.Field) (int, error) {
	values, err := reg.Read(f)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range values {
		if v != 0 {
			n++
		}
	}
	return n, nil
}

func newRegisterFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List pixel register fields and their row positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROW\tFIELD")
			for _, f := range register.Fields() {
				pos, err := f.Position()
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%s\n", pos, f)
			}
			return tw.Flush()
		},
	}
}
