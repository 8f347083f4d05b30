// Package main provides the entry point for the pixeq pixel equalization tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pixel-equalizer/internal/config"
	"pixel-equalizer/internal/logging"
	"pixel-equalizer/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// defaultConfigPath is used when --config is not given.
var defaultConfigPath = filepath.Join(".pixeq", "config.yaml")

// cli carries state shared by every subcommand.
type cli struct {
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the pixeq command tree.
func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "pixeq",
		Short: "Pixel detector threshold and gain equalization",
		Long: `pixeq equalizes the per-pixel response of multi-chip pixel detectors.

It reads DISC (threshold) and IFEED (gain) calibration scans, computes a
per-pixel setting, range flag and mask flag for every chip, and can record
runs in a local history database and export them as pixel maps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", c.configPath, err)
			}
			c.cfg = cfg

			logger, err := logging.New(cfg.Logging, c.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", defaultConfigPath, "Path to YAML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		c.newEqualizeCmd(),
		c.newHistoryCmd(),
		c.newShowCmd(),
		c.newExportCmd(),
		c.newWatchCmd(),
		c.newRegisterCmd(),
		c.newProjectCmd(),
		newVersionCmd(),
	)
	return root
}

// openStore opens the configured history database.
func (c *cli) openStore() (*store.Store, error) {
	s, err := store.Open(c.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", c.cfg.Store.Path, err)
	}
	return s, nil
}
