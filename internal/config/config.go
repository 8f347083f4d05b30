// Package config loads and saves pixeq tool configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"pixel-equalizer/internal/chip"
	"pixel-equalizer/internal/equalize"

	"gopkg.in/yaml.v3"
)

// Config holds all pixeq configuration.
type Config struct {
	// Chip geometry
	Chip ChipConfig `yaml:"chip"`

	// Default parameters per modality, overridable on the command line
	Disc  equalize.Params `yaml:"disc"`
	Ifeed equalize.Params `yaml:"ifeed"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	Export   ExportConfig   `yaml:"export"`
}

// ChipConfig selects the chip spec and optionally overrides its pixel grid.
type ChipConfig struct {
	Spec     string     `yaml:"spec"`                // registered spec name
	SpecFile string     `yaml:"spec_file,omitempty"` // JSON spec, takes precedence over Spec
	Grid     *chip.Grid `yaml:"grid,omitempty"`      // pixels_per_chip_grid override
}

// PipelineConfig configures equalization execution.
type PipelineConfig struct {
	Workers int `yaml:"workers"` // chips equalized concurrently
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`   // empty means stderr
}

// ExportConfig configures pixel map rendering.
type ExportConfig struct {
	Format string `yaml:"format"` // tiff, png
	Scale  int    `yaml:"scale"`  // output pixels per detector pixel
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chip:  ChipConfig{Spec: chip.DefaultSpecName},
		Disc:  equalize.DefaultDiscParams(),
		Ifeed: equalize.DefaultIfeedParams(),
		Pipeline: PipelineConfig{
			Workers: 4,
		},
		Store: StoreConfig{
			Path:    filepath.Join(".pixeq", "history.db"),
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Export: ExportConfig{
			Format: "tiff",
			Scale:  16,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if path := os.Getenv("PIXEQ_DB"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("PIXEQ_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if w := os.Getenv("PIXEQ_WORKERS"); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return fmt.Errorf("invalid PIXEQ_WORKERS %q: %w", w, err)
		}
		c.Pipeline.Workers = n
	}
	return nil
}

// ChipSpec resolves the configured chip spec, applying the grid override.
func (c *Config) ChipSpec() (chip.Spec, error) {
	return c.resolveSpec(c.Chip.Spec, c.Chip.SpecFile)
}

// ChipSpecNamed resolves the registered spec name in place of the configured
// one, still applying the grid override. An empty name means ChipSpec.
func (c *Config) ChipSpecNamed(name string) (chip.Spec, error) {
	if name == "" {
		return c.ChipSpec()
	}
	return c.resolveSpec(name, "")
}

func (c *Config) resolveSpec(name, file string) (chip.Spec, error) {
	var base *chip.BaseSpec
	switch {
	case file != "":
		spec, err := chip.LoadFromFile(file)
		if err != nil {
			return nil, err
		}
		base = spec
	default:
		spec := chip.GetSpec(name)
		if spec == nil {
			return nil, fmt.Errorf("unknown chip spec %q (known: %v)", name, chip.ListSpecs())
		}
		base = &chip.BaseSpec{
			SpecName: spec.Name(),
			Layout:   spec.Grid(),
			Channels: spec.DACChannels(),
			DACVolts: spec.Reference(),
		}
	}
	if c.Chip.Grid != nil {
		base.Layout = *c.Chip.Grid
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.ChipSpec(); err != nil {
		return fmt.Errorf("chip: %w", err)
	}
	if err := c.Disc.Validate(); err != nil {
		return fmt.Errorf("disc: %w", err)
	}
	if err := c.Ifeed.Validate(); err != nil {
		return fmt.Errorf("ifeed: %w", err)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	switch c.Export.Format {
	case "tiff", "png":
	default:
		return fmt.Errorf("invalid export format %q", c.Export.Format)
	}
	if c.Export.Scale < 1 {
		return fmt.Errorf("export.scale must be at least 1")
	}
	return nil
}

// Params returns the configured defaults for m.
func (c *Config) Params(m equalize.Modality) equalize.Params {
	if m == equalize.Ifeed {
		return c.Ifeed
	}
	return c.Disc
}
