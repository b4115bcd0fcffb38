// Package config holds the tunable parameters of the labeler. Every field is
// optional; the Get* methods fall back to the built-in defaults, so partial
// files are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rr-labeler/internal/manifest"
)

// Built-in defaults.
const (
	DefaultGaugeMM                 = manifest.StandardGaugeMM
	DefaultScale                   = manifest.ScaleHO
	DefaultSymbolSizeMM            = 5.0
	DefaultScreenPPI               = 96.0
	DefaultClickThreshold          = "100ms"
	DefaultCalibrationInset        = manifest.DefaultCalibrationInset
	DefaultHandleVisualRadius      = 8.0
	DefaultHandleInteractionRadius = 60.0
)

const maxFileSize = 1 * 1024 * 1024

// Config is the root configuration.
type Config struct {
	GaugeMM                 *float64 `json:"gauge_mm,omitempty"`
	DefaultScale            *string  `json:"default_scale,omitempty"`
	SymbolSizeMM            *float64 `json:"symbol_size_mm,omitempty"`
	ScreenPPI               *float64 `json:"screen_ppi,omitempty"`
	ClickThreshold          *string  `json:"click_threshold,omitempty"` // duration string like "100ms"
	CalibrationInset        *int     `json:"calibration_inset,omitempty"`
	HandleVisualRadius      *float64 `json:"handle_visual_radius,omitempty"`
	HandleInteractionRadius *float64 `json:"handle_interaction_radius,omitempty"`
	DeletableCategories     []string `json:"deletable_categories,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Default returns a Config with every field set to its built-in value.
func Default() *Config {
	return &Config{
		GaugeMM:                 ptrFloat64(DefaultGaugeMM),
		DefaultScale:            ptrString(string(DefaultScale)),
		SymbolSizeMM:            ptrFloat64(DefaultSymbolSizeMM),
		ScreenPPI:               ptrFloat64(DefaultScreenPPI),
		ClickThreshold:          ptrString(DefaultClickThreshold),
		CalibrationInset:        ptrInt(DefaultCalibrationInset),
		HandleVisualRadius:      ptrFloat64(DefaultHandleVisualRadius),
		HandleInteractionRadius: ptrFloat64(DefaultHandleInteractionRadius),
		DeletableCategories:     []string{string(manifest.CategoryLabel)},
	}
}

// Load reads a Config from a JSON file. The file must have a .json extension
// and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
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

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"gauge_mm", c.GaugeMM},
		{"symbol_size_mm", c.SymbolSizeMM},
		{"screen_ppi", c.ScreenPPI},
		{"handle_visual_radius", c.HandleVisualRadius},
		{"handle_interaction_radius", c.HandleInteractionRadius},
	}
	for _, f := range positive {
		if f.v != nil && !(*f.v > 0) {
			return fmt.Errorf("%s must be positive, got %f", f.name, *f.v)
		}
	}

	if c.DefaultScale != nil {
		if _, ok := manifest.Scale(*c.DefaultScale).Ratio(); !ok {
			return fmt.Errorf("unknown default_scale %q", *c.DefaultScale)
		}
	}

	if c.ClickThreshold != nil && *c.ClickThreshold != "" {
		d, err := time.ParseDuration(*c.ClickThreshold)
		if err != nil {
			return fmt.Errorf("invalid click_threshold '%s': %w", *c.ClickThreshold, err)
		}
		if d <= 0 {
			return fmt.Errorf("click_threshold must be positive, got %s", d)
		}
	}

	if c.CalibrationInset != nil && *c.CalibrationInset < 0 {
		return fmt.Errorf("calibration_inset must be non-negative, got %d", *c.CalibrationInset)
	}

	for _, cat := range c.DeletableCategories {
		switch manifest.Category(cat) {
		case manifest.CategoryLabel, manifest.CategoryCalibration:
		default:
			return fmt.Errorf("unknown category %q in deletable_categories", cat)
		}
	}
	return nil
}

// GetGaugeMM returns the prototype track gauge in millimeters.
func (c *Config) GetGaugeMM() float64 {
	if c.GaugeMM == nil {
		return DefaultGaugeMM
	}
	return *c.GaugeMM
}

// GetDefaultScale returns the scale assigned to new layouts.
func (c *Config) GetDefaultScale() manifest.Scale {
	if c.DefaultScale == nil {
		return DefaultScale
	}
	return manifest.Scale(*c.DefaultScale)
}

func (c *Config) GetSymbolSizeMM() float64 {
	if c.SymbolSizeMM == nil {
		return DefaultSymbolSizeMM
	}
	return *c.SymbolSizeMM
}

func (c *Config) GetScreenPPI() float64 {
	if c.ScreenPPI == nil {
		return DefaultScreenPPI
	}
	return *c.ScreenPPI
}

// GetClickThreshold returns the longest press that still counts as a click.
func (c *Config) GetClickThreshold() time.Duration {
	if c.ClickThreshold == nil || *c.ClickThreshold == "" {
		d, _ := time.ParseDuration(DefaultClickThreshold)
		return d
	}
	d, err := time.ParseDuration(*c.ClickThreshold)
	if err != nil {
		d, _ = time.ParseDuration(DefaultClickThreshold)
	}
	return d
}

func (c *Config) GetCalibrationInset() int {
	if c.CalibrationInset == nil {
		return DefaultCalibrationInset
	}
	return *c.CalibrationInset
}

func (c *Config) GetHandleVisualRadius() float64 {
	if c.HandleVisualRadius == nil {
		return DefaultHandleVisualRadius
	}
	return *c.HandleVisualRadius
}

func (c *Config) GetHandleInteractionRadius() float64 {
	if c.HandleInteractionRadius == nil {
		return DefaultHandleInteractionRadius
	}
	return *c.HandleInteractionRadius
}

// GetDeletableCategories returns the categories the delete tool may remove.
func (c *Config) GetDeletableCategories() []manifest.Category {
	names := c.DeletableCategories
	if names == nil {
		names = []string{string(manifest.CategoryLabel)}
	}
	out := make([]manifest.Category, len(names))
	for i, n := range names {
		out[i] = manifest.Category(n)
	}
	return out
}
