// Package config loads despeckle settings from a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepteams/despeckle"
)

// maxFileSize bounds the size of a config file.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds filter settings. Nil fields are unset and leave the
// corresponding option untouched, so partial files are safe.
type Config struct {
	Radius     *int    `json:"radius,omitempty"`
	Filter     *string `json:"filter,omitempty"` // "adaptive" or "recursive"
	BlackLevel *int    `json:"black_level,omitempty"`
	WhiteLevel *int    `json:"white_level,omitempty"`
	Seed       *uint64 `json:"seed,omitempty"` // fixed tie-break seed for reproducible output
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set. Cross-field rules such as
// black_level < white_level are left to despeckle.Options.Validate, since
// flags may still override either level.
func (c *Config) Validate() error {
	if c.Radius != nil && (*c.Radius < 1 || *c.Radius > despeckle.MaxRadius) {
		return fmt.Errorf("radius must be between 1 and %d, got %d", despeckle.MaxRadius, *c.Radius)
	}
	if c.Filter != nil {
		if _, err := despeckle.ParseFilterType(*c.Filter); err != nil {
			return err
		}
	}
	if c.BlackLevel != nil && (*c.BlackLevel < 0 || *c.BlackLevel > 255) {
		return fmt.Errorf("black_level must be between 0 and 255, got %d", *c.BlackLevel)
	}
	if c.WhiteLevel != nil && (*c.WhiteLevel < 0 || *c.WhiteLevel > 255) {
		return fmt.Errorf("white_level must be between 0 and 255, got %d", *c.WhiteLevel)
	}
	return nil
}

// Apply copies the set fields into o.
func (c *Config) Apply(o *despeckle.Options) error {
	if c.Radius != nil {
		o.Radius = *c.Radius
	}
	if c.Filter != nil {
		ft, err := despeckle.ParseFilterType(*c.Filter)
		if err != nil {
			return err
		}
		o.Type = ft
	}
	if c.BlackLevel != nil {
		o.BlackLevel = *c.BlackLevel
	}
	if c.WhiteLevel != nil {
		o.WhiteLevel = *c.WhiteLevel
	}
	if c.Seed != nil {
		o.Rand = despeckle.NewSource(*c.Seed)
	}
	return nil
}
