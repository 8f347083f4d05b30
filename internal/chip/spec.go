// Package chip provides pixel chip geometry definitions and management.
package chip

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Grid is the physical pixel layout of one chip.
type Grid struct {
	Rows int `json:"rows" yaml:"rows"`
	Cols int `json:"cols" yaml:"cols"`
}

// Pixels returns the number of pixels in the grid.
func (g Grid) Pixels() int {
	return g.Rows * g.Cols
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d", g.Rows, g.Cols)
}

// VoltageRange is the reference range of the chip DACs.
type VoltageRange struct {
	Min float64 `json:"min"` // Volts
	Max float64 `json:"max"` // Volts
}

// Contains reports whether v lies inside the range, inclusive.
func (r VoltageRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Spec defines a chip specification.
type Spec interface {
	Name() string
	Grid() Grid
	DACChannels() int
	Reference() VoltageRange
	Validate() error
}

// BaseSpec provides a common implementation of Spec.
type BaseSpec struct {
	SpecName string       `json:"name"`
	Layout   Grid         `json:"grid"`
	Channels int          `json:"dac_channels"`
	DACVolts VoltageRange `json:"dac_reference"`
	Notes    string       `json:"notes,omitempty"`
}

func (s *BaseSpec) Name() string {
	return s.SpecName
}

func (s *BaseSpec) Grid() Grid {
	return s.Layout
}

func (s *BaseSpec) DACChannels() int {
	return s.Channels
}

func (s *BaseSpec) Reference() VoltageRange {
	return s.DACVolts
}

func (s *BaseSpec) Validate() error {
	if s.SpecName == "" {
		return fmt.Errorf("chip spec name is required")
	}
	if s.Layout.Rows <= 0 || s.Layout.Cols <= 0 {
		return fmt.Errorf("chip grid must be positive, got %s", s.Layout)
	}
	if s.Channels <= 0 {
		return fmt.Errorf("dac channel count must be positive")
	}
	if s.DACVolts.Max <= s.DACVolts.Min {
		return fmt.Errorf("dac reference range is empty: [%g, %g]", s.DACVolts.Min, s.DACVolts.Max)
	}
	return nil
}

// SaveToFile saves the spec to a JSON file.
func (s *BaseSpec) SaveToFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFromFile loads a spec from a JSON file.
func LoadFromFile(path string) (*BaseSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec BaseSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chip spec: %w", err)
	}

	return &spec, nil
}

// Registry of known chip specs
var registry = make(map[string]Spec)

// Register adds a chip spec to the registry.
func Register(spec Spec) {
	registry[spec.Name()] = spec
}

// GetSpec returns a chip spec by name.
func GetSpec(name string) Spec {
	if spec, ok := registry[name]; ok {
		return spec
	}
	return nil
}

// ListSpecs returns all registered chip spec names, sorted.
func ListSpecs() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	// Register built-in chip specs
	Register(PR160Spec())
	Register(PR64Spec())
}
