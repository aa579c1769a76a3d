// Package pipeline runs a machining job end to end: contour expansion, path
// building, blank generation, collision simulation and volume analysis. The
// API server and the batch CLI both drive runs through here.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opticam-labs/edgesim/internal/cam"
	"github.com/opticam-labs/edgesim/internal/cam/analysis"
	"github.com/opticam-labs/edgesim/internal/cam/blank"
	"github.com/opticam-labs/edgesim/internal/cam/collision"
	"github.com/opticam-labs/edgesim/internal/cam/storage/sqlite"
	"github.com/opticam-labs/edgesim/internal/config"
	"github.com/opticam-labs/edgesim/internal/monitoring"
	"github.com/opticam-labs/edgesim/internal/timeutil"
)

var clock timeutil.Clock = timeutil.RealClock{}

// FinalSpec is the finished-lens cut: the contour the bevel wheel follows
// and the revolution it is cut over.
type FinalSpec struct {
	Radii          []float64 `json:"radii_mm"`
	Heights        []float64 `json:"heights_mm,omitempty"`
	SpindlePeriod  float64   `json:"spindle_period_s"`
	MaxRemovalRate float64   `json:"max_removal_rate,omitempty"`
}

// Pass returns the beveling pass the spec describes.
func (f FinalSpec) Pass() cam.PassSpec {
	return cam.PassSpec{
		Contour:        cam.Contour{Radii: f.Radii, Heights: f.Heights},
		SpindlePeriod:  f.SpindlePeriod,
		MaxRemovalRate: f.MaxRemovalRate,
	}
}

// RoughingSpec is a staged roughing plan, expanded against the blank radius
// at run time.
type RoughingSpec struct {
	Method cam.RoughingMethod `json:"method,omitempty"` // default concentric
	Steps  []cam.StepSpec     `json:"steps"`
}

// Options tunes a run. Zero fields fall back to the job's own options and
// then to the machine config.
type Options struct {
	Resolution float64 `json:"resolution_mm,omitempty"`
	Stride     int     `json:"stride,omitempty"`
	Workers    int     `json:"workers,omitempty"`
	Retime     bool    `json:"retime,omitempty"`
}

// merge overlays o onto base; set fields of o win.
func (o Options) merge(base Options) Options {
	out := base
	if o.Resolution > 0 {
		out.Resolution = o.Resolution
	}
	if o.Stride > 0 {
		out.Stride = o.Stride
	}
	if o.Workers > 0 {
		out.Workers = o.Workers
	}
	if o.Retime {
		out.Retime = true
	}
	return out
}

// Job is the JSON job description shared by the API and the batch CLI.
// Roughing passes come either explicitly (passes) or as a staged plan
// (roughing); giving both is an error, giving neither runs a bevel-only job.
type Job struct {
	Label    string         `json:"label,omitempty"`
	Blank    blank.Params   `json:"blank"`
	Final    FinalSpec      `json:"final"`
	Roughing *RoughingSpec  `json:"roughing,omitempty"`
	Passes   []cam.PassSpec `json:"passes,omitempty"`
	Options  Options        `json:"options"`
}

func (j Job) validate() error {
	if len(j.Final.Radii) == 0 {
		return errors.New("job: final contour has no samples")
	}
	if j.Final.SpindlePeriod <= 0 {
		return fmt.Errorf("job: final pass: %w: %v", cam.ErrBadSpindlePeriod, j.Final.SpindlePeriod)
	}
	if j.Roughing != nil && len(j.Passes) > 0 {
		return errors.New("job: give either explicit passes or a roughing plan, not both")
	}
	if j.Roughing != nil && len(j.Roughing.Steps) == 0 {
		return errors.New("job: roughing plan has no steps")
	}
	return nil
}

// roughingPasses resolves the job's roughing strategy into concrete passes.
func (j Job) roughingPasses() ([]cam.PassSpec, error) {
	if len(j.Passes) > 0 {
		return j.Passes, nil
	}
	if j.Roughing == nil {
		return nil, nil
	}
	method := j.Roughing.Method
	if method == "" {
		method = cam.Concentric
	}
	return cam.RoughingSteps(j.Final.Pass().Contour, j.Blank.Diameter/2, method, j.Roughing.Steps)
}

// LoadJob reads a job spec from a JSON file.
func LoadJob(path string) (Job, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Job{}, fmt.Errorf("job file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Job{}, fmt.Errorf("failed to stat job file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return Job{}, fmt.Errorf("job file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Job{}, fmt.Errorf("failed to read job file: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to parse job JSON: %w", err)
	}
	return job, nil
}

// Result bundles everything a finished run produced.
type Result struct {
	Job     Job             // as run, with the resolved blank resolution
	Machine *config.Machine

	Path   cam.CompletePath
	Frames cam.PathFrames
	Passes []cam.PassSpec // roughing passes actually attempted
	Blank  *blank.Grid    // generated blank scalar field
	Death  *blank.Grid    // per-cell removal times

	History analysis.History
	Rates   analysis.Rates
	Digest  analysis.Digest

	// RetimedTimes is the rate-constrained time axis, nil unless the job
	// asked for retiming.
	RetimedTimes []float64

	// Skipped lists passes the builder dropped because their contours could
	// not be solved. The run is complete without them.
	Skipped []*cam.PassError
}

// RetimedDuration returns the stretched path duration, or the as-built
// duration when no retiming was applied.
func (r *Result) RetimedDuration() float64 {
	if n := len(r.RetimedTimes); n > 0 {
		return r.RetimedTimes[n-1]
	}
	return r.Frames.Duration()
}

// Record flattens the result into its persisted form. The machine and job
// specs ride along as JSON blobs so a stored run can be replayed without the
// original files.
func (r *Result) Record() (sqlite.Run, error) {
	machineJSON, err := json.Marshal(r.Machine)
	if err != nil {
		return sqlite.Run{}, fmt.Errorf("marshal machine config: %w", err)
	}
	jobJSON, err := json.Marshal(r.Job)
	if err != nil {
		return sqlite.Run{}, fmt.Errorf("marshal job: %w", err)
	}
	return sqlite.Run{
		Label:              r.Job.Label,
		MachineJSON:        machineJSON,
		JobJSON:            jobJSON,
		FrameCount:         r.Frames.Frames(),
		DurationSec:        r.Frames.Duration(),
		RetimedDurationSec: r.RetimedDuration(),
		InitialVolumeMM3:   r.Digest.InitialVolume,
		RemovedVolumeMM3:   r.Digest.RemovedVolume,
		PercentComplete:    r.Digest.PercentComplete,
		PeakRateMM3S:       r.Digest.PeakRate,
		ResolutionMM:       r.Job.Blank.Resolution,
	}, nil
}

// PathPlan is the build stage's output: the machining path and the passes
// that produced it, before any material simulation.
type PathPlan struct {
	Path    cam.CompletePath
	Frames  cam.PathFrames
	Passes  []cam.PassSpec
	Skipped []*cam.PassError
}

// BuildPath resolves the job's passes and builds the machining path without
// simulating it. Passes the solver could not place are skipped and listed in
// the plan; fatal build errors fail the call.
func BuildPath(ctx context.Context, job Job, m *config.Machine) (*PathPlan, error) {
	if m == nil {
		m = config.Default()
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("machine config: %w", err)
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	passes, err := job.roughingPasses()
	if err != nil {
		return nil, err
	}
	builder, err := cam.NewBuilder(m.ToolStack(), cam.ContactSolver{}, m.PathConfig())
	if err != nil {
		return nil, err
	}
	path, buildErr := builder.CompletePath(ctx, passes, job.Final.Pass())
	if buildErr != nil && len(path.Complete.Steps) == 0 {
		return nil, buildErr
	}
	return &PathPlan{
		Path:    path,
		Frames:  path.Complete.Flatten(),
		Passes:  passes,
		Skipped: passErrors(buildErr),
	}, nil
}

// Run executes job against machine m; nil selects the reference machine.
// opts overrides the job's own options field by field.
func Run(ctx context.Context, job Job, m *config.Machine, opts Options) (*Result, error) {
	if m == nil {
		m = config.Default()
	}
	merged := opts.merge(job.Options)

	if merged.Resolution > 0 {
		job.Blank.Resolution = merged.Resolution
	} else if job.Blank.Resolution <= 0 {
		job.Blank.Resolution = m.GetResolution()
	}

	plan, err := BuildPath(ctx, job, m)
	if err != nil {
		return nil, err
	}
	if err := job.Blank.Validate(); err != nil {
		return nil, fmt.Errorf("blank: %w", err)
	}
	path, frames := plan.Path, plan.Frames
	monitoring.Logf("pipeline: built %d frames over %d cutting segments (%.1fs)",
		frames.Frames(), len(path.Segments), frames.Duration())

	grid, err := blank.Generate(job.Blank)
	if err != nil {
		return nil, fmt.Errorf("blank: %w", err)
	}

	stride := merged.Stride
	if stride <= 0 {
		stride = m.GetStride()
	}
	workers := merged.Workers
	if workers <= 0 {
		workers = m.GetWorkers()
	}

	start := clock.Now()
	death, err := collision.Simulate(ctx, grid, frames, path.Segments, m.ToolStack(), collision.Options{
		Stride:  stride,
		Workers: workers,
	})
	if err != nil {
		return nil, err
	}
	monitoring.Logf("pipeline: simulated %d cells in %v", death.Len(), clock.Since(start))

	history := analysis.VolumeHistory(death, frames.Time)
	rates := analysis.RemovalRates(death, frames, path.Segments, m.GetDefaultMaxRemovalRate())

	res := &Result{
		Job:     job,
		Machine: m,
		Path:    path,
		Frames:  frames,
		Passes:  plan.Passes,
		Blank:   grid,
		Death:   death,
		History: history,
		Rates:   rates,
		Digest:  analysis.Summarize(history, rates, frames.Time),
		Skipped: plan.Skipped,
	}
	if merged.Retime {
		res.RetimedTimes = analysis.RetimeForRates(frames.Time, rates)
	}
	return res, nil
}

// passErrors walks a joined build error and collects the per-pass skips.
func passErrors(err error) []*cam.PassError {
	if err == nil {
		return nil
	}
	var out []*cam.PassError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if pe, ok := e.(*cam.PassError); ok {
			out = append(out, pe)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, c := range u.Unwrap() {
				walk(c)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
