package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/fusion.report/internal/fusion"
)

// TuningConfig represents the filter tuning parameters loadable from a
// JSON file. All fields are pointers so a partial file overrides only the
// values it names; everything else keeps the built-in defaults.
type TuningConfig struct {
	// Sensor enables
	EnableDirect       *bool `json:"enable_direct,omitempty"`
	EnableRangeBearing *bool `json:"enable_range_bearing,omitempty"`

	// Process noise standard deviations
	StdAccel    *float64 `json:"std_accel,omitempty"`
	StdYawAccel *float64 `json:"std_yaw_accel,omitempty"`

	// Direct sensor measurement noise
	StdDirectX *float64 `json:"std_direct_x,omitempty"`
	StdDirectY *float64 `json:"std_direct_y,omitempty"`

	// Range-bearing sensor measurement noise
	StdRange     *float64 `json:"std_range,omitempty"`
	StdBearing   *float64 `json:"std_bearing,omitempty"`
	StdRangeRate *float64 `json:"std_range_rate,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Full validation happens in fusion.FilterConfig.Validate once the
	// overrides are applied; here we only reject obviously bad values so
	// the error points at the file rather than the filter.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects override values that can never be valid.
func (c *TuningConfig) Validate() error {
	checks := []struct {
		name  string
		value *float64
	}{
		{"std_accel", c.StdAccel},
		{"std_yaw_accel", c.StdYawAccel},
		{"std_direct_x", c.StdDirectX},
		{"std_direct_y", c.StdDirectY},
		{"std_range", c.StdRange},
		{"std_bearing", c.StdBearing},
		{"std_range_rate", c.StdRangeRate},
	}
	for _, ch := range checks {
		if ch.value != nil && *ch.value <= 0 {
			return fmt.Errorf("%s must be positive, got %f", ch.name, *ch.value)
		}
	}
	return nil
}

// Apply overlays the set fields onto base and returns the result.
func (c *TuningConfig) Apply(base fusion.FilterConfig) fusion.FilterConfig {
	if c.EnableDirect != nil {
		base.EnableDirect = *c.EnableDirect
	}
	if c.EnableRangeBearing != nil {
		base.EnableRangeBearing = *c.EnableRangeBearing
	}
	if c.StdAccel != nil {
		base.StdAccel = *c.StdAccel
	}
	if c.StdYawAccel != nil {
		base.StdYawAccel = *c.StdYawAccel
	}
	if c.StdDirectX != nil {
		base.StdDirectX = *c.StdDirectX
	}
	if c.StdDirectY != nil {
		base.StdDirectY = *c.StdDirectY
	}
	if c.StdRange != nil {
		base.StdRange = *c.StdRange
	}
	if c.StdBearing != nil {
		base.StdBearing = *c.StdBearing
	}
	if c.StdRangeRate != nil {
		base.StdRangeRate = *c.StdRangeRate
	}
	return base
}
