package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"pixel-equalizer/internal/equalize"
	"pixel-equalizer/internal/export"
	"pixel-equalizer/internal/scan"
	"pixel-equalizer/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) newWatchCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Equalize scans as they appear in a directory",
		Long: `Watches DIR for new or rewritten scan files. Each settled file is equalized
with the configured parameters for its modality and recorded in the history
database. With --out, pixel maps are written to a subdirectory per scan.
Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := watch.New(args[0], func(ctx context.Context, path string) {
				if err := c.processScan(ctx, path, outDir); err != nil {
					c.logger.Error("failed to process scan", zap.String("path", path), zap.Error(err))
				}
			}, c.logger)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				w.Stop()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for %s files\n", args[0], scan.FileExt)

			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Write pixel maps under this directory")
	return cmd
}

// processScan equalizes one scan file and records it.
func (c *cli) processScan(ctx context.Context, path, outDir string) error {
	sf, err := scan.ReadFile(path)
	if err != nil {
		return err
	}
	mod, err := equalize.ParseModality(sf.Modality)
	if err != nil {
		return err
	}
	params := c.cfg.Params(mod)
	res, err := c.equalize(ctx, mod, sf, "", params, c.cfg.Pipeline.Workers)
	if err != nil {
		return err
	}

	if outDir != "" {
		dir := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		if _, err := export.WriteResult(dir, res, c.exportOptions(false)); err != nil {
			return err
		}
	}
	if !c.cfg.Store.Enabled {
		return nil
	}
	_, err = c.record(ctx, path, params, res)
	return err
}
