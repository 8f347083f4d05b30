// Package project provides calibration job manifest handling and persistence.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pixel-equalizer/internal/equalize"
)

// FileExt is the extension of job manifests.
const FileExt = ".pxproj"

// CurrentVersion is the manifest format version written by Save.
const CurrentVersion = 1

// File represents a calibration job manifest (.pxproj).
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	ChipSpec    string    `json:"chip_spec"`
	Modality    string    `json:"modality"`
	Description string    `json:"description,omitempty"`

	// Data paths (relative to manifest)
	ScanPath  string `json:"scan,omitempty"`
	OutputDir string `json:"output_dir,omitempty"`

	Params equalize.Params `json:"params"`

	// Run id of the last stored equalization, if any
	LastRunID string `json:"last_run_id,omitempty"`
}

// New creates a job manifest with the default parameters for mod.
func New(name, chipSpec string, mod equalize.Modality) *File {
	now := time.Now()
	return &File{
		Version:  CurrentVersion,
		Name:     name,
		Created:  now,
		Modified: now,
		ChipSpec: chipSpec,
		Modality: mod.String(),
		Params:   equalize.DefaultParams(mod),
	}
}

// Load loads a job manifest from a .pxproj file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var proj File
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if proj.Version > CurrentVersion {
		return nil, fmt.Errorf("%s: unsupported manifest version %d", path, proj.Version)
	}
	if _, err := proj.GetModality(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &proj, nil
}

// Save saves the manifest to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetModality parses the manifest's modality.
func (p *File) GetModality() (equalize.Modality, error) {
	return equalize.ParseModality(p.Modality)
}

// SetScan sets the scan file path (relative to the manifest).
func (p *File) SetScan(projectPath, scanPath string) {
	p.ScanPath = relativeTo(projectPath, scanPath)
	p.Modified = time.Now()
}

// SetOutputDir sets the export directory (relative to the manifest).
func (p *File) SetOutputDir(projectPath, dir string) {
	p.OutputDir = relativeTo(projectPath, dir)
	p.Modified = time.Now()
}

// GetScanPath returns the absolute path to the scan file.
func (p *File) GetScanPath(projectPath string) string {
	return resolve(projectPath, p.ScanPath)
}

// GetOutputDir returns the absolute path to the export directory.
func (p *File) GetOutputDir(projectPath string) string {
	if p.OutputDir == "" {
		// Default: project_name_maps
		base := strings.TrimSuffix(projectPath, filepath.Ext(projectPath))
		return base + "_maps"
	}
	return resolve(projectPath, p.OutputDir)
}

func relativeTo(projectPath, target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		return target
	}
	base, err := filepath.Abs(filepath.Dir(projectPath))
	if err != nil {
		return target
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return target
	}
	return rel
}

func resolve(projectPath, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(projectPath), p)
}
