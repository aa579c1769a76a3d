// Package config loads and validates the machine description: the tool
// stack geometry plus the motion and simulation defaults the planner runs
// with. All fields are pointers so a partial JSON file overrides only what
// it names; the Get* accessors fall back to the reference machine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opticam-labs/edgesim/internal/cam"
	"github.com/opticam-labs/edgesim/internal/cam/analysis"
	"github.com/opticam-labs/edgesim/internal/cam/blank"
	"github.com/opticam-labs/edgesim/internal/cam/collision"
)

// Machine is the root configuration. The schema doubles as the
// /api/machine response so one JSON document describes the machine both at
// startup and over the wire.
type Machine struct {
	// Tool stack geometry
	TiltDeg      *float64    `json:"tilt_deg,omitempty"`
	BasePosition *[3]float64 `json:"base_position_mm,omitempty"`
	Wheels       []cam.Wheel `json:"wheels,omitempty"`

	// Path building
	HomeRadial     *float64 `json:"home_radial_mm,omitempty"`
	HomeAxial      *float64 `json:"home_axial_mm,omitempty"`
	TravelFeedRate *float64 `json:"travel_feed_rate_mmps,omitempty"`
	FrameRate      *float64 `json:"frame_rate_hz,omitempty"`
	MinFrames      *int     `json:"min_transition_frames,omitempty"`

	// Simulation
	Resolution            *float64 `json:"resolution_mm,omitempty"`
	Stride                *int     `json:"sim_stride,omitempty"`
	Workers               *int     `json:"sim_workers,omitempty"`
	DefaultMaxRemovalRate *float64 `json:"default_max_removal_rate_mm3s,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Machine with all fields nil so every accessor falls back
// to the reference defaults.
func Empty() *Machine {
	return &Machine{}
}

// Default returns the reference machine fully spelled out: the standard
// two-wheel stack and the stock motion and simulation parameters.
func Default() *Machine {
	std := cam.StandardStack()
	return &Machine{
		TiltDeg:               ptrFloat64(std.TiltDeg),
		BasePosition:          &std.Base,
		Wheels:                std.Wheels,
		HomeRadial:            ptrFloat64(-50),
		HomeAxial:             ptrFloat64(0),
		TravelFeedRate:        ptrFloat64(50),
		FrameRate:             ptrFloat64(30),
		MinFrames:             ptrInt(2),
		Resolution:            ptrFloat64(blank.DefaultParams().Resolution),
		Stride:                ptrInt(collision.DefaultStride),
		DefaultMaxRemovalRate: ptrFloat64(analysis.DefaultMaxRemovalRate),
	}
}

// MustDefault returns Default after validation, panicking on failure.
// Intended for tools and test setup.
func MustDefault() *Machine {
	m := Default()
	if err := m.Validate(); err != nil {
		panic("default machine config invalid: " + err.Error())
	}
	return m
}

// Load reads a Machine from a JSON file. The file must carry a .json
// extension and stay under the size cap; fields omitted from the JSON keep
// their reference defaults, so partial configs are safe.
func Load(path string) (*Machine, error) {
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

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every field that is set; nil fields validate trivially
// because their fallbacks are known good.
func (m *Machine) Validate() error {
	if err := m.ToolStack().Validate(); err != nil {
		return err
	}
	if m.TravelFeedRate != nil && *m.TravelFeedRate <= 0 {
		return fmt.Errorf("travel_feed_rate_mmps must be positive, got %g", *m.TravelFeedRate)
	}
	if m.FrameRate != nil && *m.FrameRate <= 0 {
		return fmt.Errorf("frame_rate_hz must be positive, got %g", *m.FrameRate)
	}
	if m.MinFrames != nil && *m.MinFrames < 2 {
		return fmt.Errorf("min_transition_frames must be at least 2, got %d", *m.MinFrames)
	}
	if m.Resolution != nil && *m.Resolution <= 0 {
		return fmt.Errorf("resolution_mm must be positive, got %g", *m.Resolution)
	}
	if m.Stride != nil && *m.Stride < 1 {
		return fmt.Errorf("sim_stride must be at least 1, got %d", *m.Stride)
	}
	if m.Workers != nil && *m.Workers < 0 {
		return fmt.Errorf("sim_workers must be non-negative, got %d", *m.Workers)
	}
	if m.DefaultMaxRemovalRate != nil && *m.DefaultMaxRemovalRate <= 0 {
		return fmt.Errorf("default_max_removal_rate_mm3s must be positive, got %g", *m.DefaultMaxRemovalRate)
	}
	return nil
}

// ToolStack assembles the stack from the set fields, falling back to the
// standard stack for the rest.
func (m *Machine) ToolStack() cam.ToolStack {
	ts := cam.StandardStack()
	if m.TiltDeg != nil {
		ts.TiltDeg = *m.TiltDeg
	}
	if m.BasePosition != nil {
		ts.Base = *m.BasePosition
	}
	if len(m.Wheels) > 0 {
		ts.Wheels = m.Wheels
	}
	return ts
}

// PathConfig assembles the builder's motion defaults.
func (m *Machine) PathConfig() cam.PathConfig {
	pc := cam.DefaultPathConfig()
	if m.HomeRadial != nil {
		pc.HomeRadial = *m.HomeRadial
	}
	if m.HomeAxial != nil {
		pc.HomeAxial = *m.HomeAxial
	}
	if m.TravelFeedRate != nil {
		pc.TravelFeedRate = *m.TravelFeedRate
	}
	if m.FrameRate != nil {
		pc.FrameRate = *m.FrameRate
	}
	if m.MinFrames != nil {
		pc.MinFrames = *m.MinFrames
	}
	return pc
}

// GetResolution returns the voxel resolution or the blank default.
func (m *Machine) GetResolution() float64 {
	if m.Resolution == nil {
		return blank.DefaultParams().Resolution
	}
	return *m.Resolution
}

// GetStride returns the simulation stride or the simulator default.
func (m *Machine) GetStride() int {
	if m.Stride == nil {
		return collision.DefaultStride
	}
	return *m.Stride
}

// GetWorkers returns the worker count; 0 lets the simulator size itself.
func (m *Machine) GetWorkers() int {
	if m.Workers == nil {
		return 0
	}
	return *m.Workers
}

// GetDefaultMaxRemovalRate returns the removal-rate ceiling applied where
// no pass sets its own.
func (m *Machine) GetDefaultMaxRemovalRate() float64 {
	if m.DefaultMaxRemovalRate == nil {
		return analysis.DefaultMaxRemovalRate
	}
	return *m.DefaultMaxRemovalRate
}
