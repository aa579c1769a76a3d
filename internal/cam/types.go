package cam

import (
	"fmt"
	"sort"
)

// StepKind identifies the role of an operation step within a movement path.
type StepKind string

const (
	StepHome     StepKind = "home"
	StepApproach StepKind = "approach"
	StepRoughing StepKind = "roughing"
	StepBeveling StepKind = "beveling"
	StepRetract  StepKind = "retract"
)

// Cutting reports whether the step kind engages a wheel with the blank.
func (k StepKind) Cutting() bool {
	return k == StepRoughing || k == StepBeveling
}

// Position is a machine-frame location of the cutting point.
type Position struct {
	Radial  float64 // carriage X (mm)
	Axial   float64 // spindle Z (mm)
	Spindle float64 // lens rotation (degrees)
}

// OperationStep is one homogeneous segment of machine motion: a home dwell, a
// linear transition, or a cutting revolution. The sample arrays are parallel
// and equal length; Time is step-relative seconds starting at zero. Steps are
// produced by builder constructors and treated as read-only afterwards.
type OperationStep struct {
	Kind StepKind // role of this step in the path
	Pass int      // pass index for cutting kinds (0-based within the kind)

	Radial  []float64 // carriage X per sample (mm)
	Axial   []float64 // spindle Z per sample (mm)
	Spindle []float64 // lens angle per sample (degrees)
	Time    []float64 // step-relative time per sample (s), Time[0] == 0

	FeedRate       float64 // transition feed (mm/s), 0 for cutting steps
	SpindlePeriod  float64 // cutting spindle period (s/rev), 0 for transitions
	MaxRemovalRate float64 // removal ceiling for cutting steps (mm³/s), 0 = default
}

func newOperationStep(kind StepKind, pass int, radial, axial, spindle, time []float64) (OperationStep, error) {
	n := len(radial)
	if n == 0 {
		return OperationStep{}, fmt.Errorf("operation step %q: no samples", kind)
	}
	if len(axial) != n || len(spindle) != n || len(time) != n {
		return OperationStep{}, fmt.Errorf("operation step %q: mismatched sample arrays (%d/%d/%d/%d)",
			kind, n, len(axial), len(spindle), len(time))
	}
	if time[0] != 0 {
		return OperationStep{}, fmt.Errorf("operation step %q: time must start at zero, got %v", kind, time[0])
	}
	for i := 1; i < n; i++ {
		if time[i] < time[i-1] {
			return OperationStep{}, fmt.Errorf("operation step %q: time decreases at sample %d", kind, i)
		}
	}
	return OperationStep{Kind: kind, Pass: pass, Radial: radial, Axial: axial, Spindle: spindle, Time: time}, nil
}

// Frames returns the number of samples in the step.
func (s OperationStep) Frames() int { return len(s.Time) }

// Duration returns the step-relative time of the final sample.
func (s OperationStep) Duration() float64 {
	if len(s.Time) == 0 {
		return 0
	}
	return s.Time[len(s.Time)-1]
}

// Start returns the first machine position of the step.
func (s OperationStep) Start() Position {
	return Position{Radial: s.Radial[0], Axial: s.Axial[0], Spindle: s.Spindle[0]}
}

// End returns the final machine position of the step.
func (s OperationStep) End() Position {
	i := len(s.Radial) - 1
	return Position{Radial: s.Radial[i], Axial: s.Axial[i], Spindle: s.Spindle[i]}
}

// MovementPath is an ordered sequence of operation steps.
type MovementPath struct {
	Steps []OperationStep
}

// Frames returns the total sample count across all steps.
func (p MovementPath) Frames() int {
	n := 0
	for _, s := range p.Steps {
		n += s.Frames()
	}
	return n
}

// Duration returns the total duration in seconds.
func (p MovementPath) Duration() float64 {
	d := 0.0
	for _, s := range p.Steps {
		d += s.Duration()
	}
	return d
}

// End returns the final position of the path, or false for an empty path.
func (p MovementPath) End() (Position, bool) {
	if len(p.Steps) == 0 {
		return Position{}, false
	}
	return p.Steps[len(p.Steps)-1].End(), true
}

// Flatten concatenates the steps into a single frame record with cumulative
// timing: each step's samples are shifted by the total duration of the steps
// before it.
func (p MovementPath) Flatten() PathFrames {
	n := p.Frames()
	f := PathFrames{
		Radial:  make([]float64, 0, n),
		Axial:   make([]float64, 0, n),
		Spindle: make([]float64, 0, n),
		Time:    make([]float64, 0, n),
	}
	offset := 0.0
	for _, s := range p.Steps {
		for i := range s.Time {
			f.Radial = append(f.Radial, s.Radial[i])
			f.Axial = append(f.Axial, s.Axial[i])
			f.Spindle = append(f.Spindle, s.Spindle[i])
			f.Time = append(f.Time, offset+s.Time[i])
		}
		offset += s.Duration()
	}
	return f
}

// PathFrames is the flattened export record of a movement path: four parallel
// arrays over the path's global frame index space. This is the boundary
// format consumed by the simulator, the exporters and the API.
type PathFrames struct {
	Radial  []float64 `json:"x_mm"`
	Axial   []float64 `json:"z_mm"`
	Spindle []float64 `json:"theta_deg"`
	Time    []float64 `json:"time_sec"`
}

// Frames returns the number of frames in the record.
func (f PathFrames) Frames() int { return len(f.Time) }

// Duration returns the cumulative time of the final frame, 0 when empty.
func (f PathFrames) Duration() float64 {
	if len(f.Time) == 0 {
		return 0
	}
	return f.Time[len(f.Time)-1]
}

// At returns the index of the frame active at time t: the last frame whose
// cumulative time is <= t, clamped to the record's range. Where a step
// boundary puts two frames at the same instant, the later frame wins (the
// first frame of the following step). An empty record returns -1.
func (f PathFrames) At(t float64) int {
	n := len(f.Time)
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return f.Time[i] > t }) - 1
	if i < 0 {
		return 0
	}
	return i
}

// WithTimes returns a copy of the record on a replacement time axis, as
// produced by rate-constrained retiming.
func (f PathFrames) WithTimes(times []float64) (PathFrames, error) {
	if len(times) != len(f.Time) {
		return PathFrames{}, fmt.Errorf("replacement time axis has %d samples, path has %d", len(times), len(f.Time))
	}
	return PathFrames{
		Radial:  append([]float64(nil), f.Radial...),
		Axial:   append([]float64(nil), f.Axial...),
		Spindle: append([]float64(nil), f.Spindle...),
		Time:    append([]float64(nil), times...),
	}, nil
}

// PassSegment marks an inclusive frame-index range of the flattened path
// during which a wheel is engaged. Frames outside every segment belong to
// transitions and are skipped by the simulator.
type PassSegment struct {
	Start          int      `json:"start_idx"`       // first frame index (inclusive)
	End            int      `json:"end_idx"`         // last frame index (inclusive)
	Kind           StepKind `json:"operation"`       // roughing or beveling
	Pass           int      `json:"pass_idx"`        // pass number within the kind
	MaxRemovalRate float64  `json:"max_volume_rate"` // mm³/s ceiling, 0 = library default
}

// Contains reports whether frame index i falls inside the segment.
func (s PassSegment) Contains(i int) bool { return s.Start <= i && i <= s.End }

// Segments returns the cutting ranges of the flattened path, in order.
func Segments(path MovementPath) []PassSegment {
	var segs []PassSegment
	offset := 0
	for _, s := range path.Steps {
		if s.Kind.Cutting() {
			segs = append(segs, PassSegment{
				Start:          offset,
				End:            offset + s.Frames() - 1,
				Kind:           s.Kind,
				Pass:           s.Pass,
				MaxRemovalRate: s.MaxRemovalRate,
			})
		}
		offset += s.Frames()
	}
	return segs
}

// CompletePath bundles the full machining sequence with its building blocks.
type CompletePath struct {
	Roughing MovementPath  // home + staged roughing passes, no retract
	Beveling MovementPath  // pickup + bevel revolution + retract
	Complete MovementPath  // the concatenation actually sent downstream
	Segments []PassSegment // cutting ranges over Complete's frame space
}
