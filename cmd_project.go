package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pixel-equalizer/internal/chip"
	"pixel-equalizer/internal/equalize"
	"pixel-equalizer/internal/project"
	"pixel-equalizer/internal/scan"

	"github.com/spf13/cobra"
)

func (c *cli) newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage calibration job manifests",
	}
	cmd.AddCommand(c.newProjectNewCmd())
	return cmd
}

func (c *cli) newProjectNewCmd() *cobra.Command {
	var name, specName, modality, scanPath, outDir string
	var force bool
	cmd := &cobra.Command{
		Use:   "new FILE",
		Short: "Create a " + project.FileExt + " job manifest",
		Long: `Creates a job manifest for "pixeq equalize --project". Parameters start from
the config defaults for the modality; the chip spec defaults to the
configured one.

Example:
  pixeq project new bench.pxproj --chip-spec pr64 --modality ifeed --scan gain.pxscan`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if filepath.Ext(path) != project.FileExt {
				path += project.FileExt
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			mod, err := equalize.ParseModality(modality)
			if err != nil {
				return err
			}
			if specName == "" {
				specName = c.cfg.Chip.Spec
			}
			if chip.GetSpec(specName) == nil {
				return fmt.Errorf("unknown chip spec %q (known: %v)", specName, chip.ListSpecs())
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), project.FileExt)
			}

			p := project.New(name, specName, mod)
			p.Params = c.cfg.Params(mod)
			if scanPath != "" {
				p.SetScan(path, scanPath)
			}
			if outDir != "" {
				p.SetOutputDir(path, outDir)
			}
			if err := p.Save(path); err != nil {
				return fmt.Errorf("failed to save project: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s, %s)\n", path, specName, mod)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Job name (default: file name)")
	cmd.Flags().StringVar(&specName, "chip-spec", "", "Chip spec (default: config)")
	cmd.Flags().StringVar(&modality, "modality", "disc", "disc or ifeed")
	cmd.Flags().StringVar(&scanPath, "scan", "", "Scan file ("+scan.FileExt+")")
	cmd.Flags().StringVar(&outDir, "out", "", "Map output directory")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing manifest")
	return cmd
}
