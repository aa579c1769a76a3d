package cam

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/opticam-labs/edgesim/internal/monitoring"
)

// PathConfig carries the motion defaults used when stitching steps together.
type PathConfig struct {
	HomeRadial     float64 // carriage park position (mm)
	HomeAxial      float64 // spindle park position (mm)
	TravelFeedRate float64 // transition feed (mm/s)
	FrameRate      float64 // transition sampling rate (frames/s)
	MinFrames      int     // floor on per-step sample count
}

// DefaultPathConfig returns the reference machine's motion defaults.
func DefaultPathConfig() PathConfig {
	return PathConfig{
		HomeRadial:     -50,
		HomeAxial:      0,
		TravelFeedRate: 50,
		FrameRate:      30,
		MinFrames:      2,
	}
}

// PassSpec is one cutting pass: the contour to cut, the spindle period to cut
// it at, and the removal-rate ceiling the analyzer enforces over it.
type PassSpec struct {
	Contour        Contour `json:"contour"`
	SpindlePeriod  float64 `json:"spindle_period_s"` // seconds per revolution
	MaxRemovalRate float64 `json:"max_removal_rate"` // mm³/s, 0 = library default
}

// PassError reports a pass the builder had to skip because its contour could
// not be solved.
type PassError struct {
	Kind StepKind
	Pass int
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("%s pass %d skipped: %v", e.Kind, e.Pass, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// Errors for invalid motion configuration. These abort a build outright,
// unlike solver failures which skip the offending pass.
var (
	ErrBadFeedRate      = errors.New("feed rate must be positive")
	ErrBadSpindlePeriod = errors.New("spindle period must be positive")
)

// Builder stitches kinematics solutions into timed movement paths. All
// configuration is explicit at construction; a Builder has no hidden state
// and is safe for concurrent use.
type Builder struct {
	Stack  ToolStack
	Solver Solver
	Config PathConfig
}

// NewBuilder validates the stack and fixes up config floors. A nil solver
// selects the reference ContactSolver.
func NewBuilder(stack ToolStack, solver Solver, cfg PathConfig) (*Builder, error) {
	if err := stack.Validate(); err != nil {
		return nil, fmt.Errorf("tool stack: %w", err)
	}
	if solver == nil {
		solver = ContactSolver{}
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.MinFrames < 2 {
		cfg.MinFrames = 2
	}
	return &Builder{Stack: stack, Solver: solver, Config: cfg}, nil
}

func (b *Builder) homePosition() Position {
	return Position{Radial: b.Config.HomeRadial, Axial: b.Config.HomeAxial, Spindle: 0}
}

// homeStep is the single-frame dwell that anchors a path at pos.
func (b *Builder) homeStep(pos Position) OperationStep {
	step, err := newOperationStep(StepHome, 0,
		[]float64{pos.Radial}, []float64{pos.Axial}, []float64{pos.Spindle}, []float64{0})
	if err != nil {
		panic(err) // single-sample step cannot fail validation
	}
	return step
}

// transitionFrames converts a duration to a sample count: the frame rate sets
// the density, MinFrames the floor. Frame dt therefore never drops much below
// 1/FrameRate except on the MinFrames floor.
func (b *Builder) transitionFrames(duration float64) int {
	n := int(duration * b.Config.FrameRate)
	if n < b.Config.MinFrames {
		n = b.Config.MinFrames
	}
	return n
}

// linearTransition moves the cutting point from one position to another in a
// straight carriage/spindle-axis line. The lens spindle angle snaps to the
// destination's starting angle at the first frame and holds there; the lens
// does not rotate while the carriage travels.
func (b *Builder) linearTransition(from, to Position, kind StepKind, feed float64) (OperationStep, error) {
	if feed <= 0 {
		return OperationStep{}, fmt.Errorf("%s transition: %w (got %v)", kind, ErrBadFeedRate, feed)
	}
	dist := math.Hypot(to.Radial-from.Radial, to.Axial-from.Axial)
	duration := dist / feed
	n := b.transitionFrames(duration)
	radial := make([]float64, n)
	axial := make([]float64, n)
	spindle := make([]float64, n)
	times := make([]float64, n)
	for i := 0; i < n; i++ {
		f := 0.0
		if n > 1 {
			f = float64(i) / float64(n-1)
		}
		radial[i] = from.Radial + f*(to.Radial-from.Radial)
		axial[i] = from.Axial + f*(to.Axial-from.Axial)
		spindle[i] = to.Spindle
		times[i] = f * duration
	}
	step, err := newOperationStep(kind, 0, radial, axial, spindle, times)
	if err != nil {
		return OperationStep{}, err
	}
	step.FeedRate = feed
	return step, nil
}

// cuttingStep converts a kinematics solution into a timed cutting step at the
// given wheel placement. Time advances in proportion to spindle angle, so the
// duration depends on the angle actually traversed, not on how densely the
// solver sampled it.
func (b *Builder) cuttingStep(sol Solution, wheelRadial, wheelAxial float64, spec PassSpec, kind StepKind, pass int) (OperationStep, error) {
	if spec.SpindlePeriod <= 0 {
		return OperationStep{}, fmt.Errorf("%s pass %d: %w (got %v)", kind, pass, ErrBadSpindlePeriod, spec.SpindlePeriod)
	}
	n := len(sol.SpindleDeg)
	if n == 0 || len(sol.Radial) != n || len(sol.Axial) != n {
		return OperationStep{}, fmt.Errorf("%s pass %d: malformed kinematics solution (%d/%d/%d samples)",
			kind, pass, n, len(sol.Radial), len(sol.Axial))
	}
	radial := make([]float64, n)
	axial := make([]float64, n)
	spindle := make([]float64, n)
	times := make([]float64, n)
	maxDeg := sol.SpindleDeg[0]
	for i := 0; i < n; i++ {
		radial[i] = wheelRadial - sol.Radial[i]
		axial[i] = wheelAxial + sol.Axial[i]
		spindle[i] = sol.SpindleDeg[i]
		if sol.SpindleDeg[i] > maxDeg {
			maxDeg = sol.SpindleDeg[i]
		}
	}
	duration := maxDeg / 360 * spec.SpindlePeriod
	if maxDeg <= 0 {
		// Degenerate solver output; keep a finite time axis.
		duration = float64(n) * spec.SpindlePeriod / 360
	}
	span := maxDeg - sol.SpindleDeg[0]
	for i := 0; i < n; i++ {
		switch {
		case span > 0:
			times[i] = duration * (sol.SpindleDeg[i] - sol.SpindleDeg[0]) / span
		case n > 1:
			times[i] = duration * float64(i) / float64(n-1)
		}
	}
	step, err := newOperationStep(kind, pass, radial, axial, spindle, times)
	if err != nil {
		return OperationStep{}, err
	}
	step.SpindlePeriod = spec.SpindlePeriod
	step.MaxRemovalRate = spec.MaxRemovalRate
	return step, nil
}

// passSequence anchors a path at start and appends an approach plus one
// cutting revolution per pass. Solver failures skip the pass and are joined
// into the returned error; the path itself stays usable.
func (b *Builder) passSequence(ctx context.Context, start Position, wheel Wheel, kind StepKind, passes []PassSpec) (MovementPath, error) {
	path := MovementPath{Steps: []OperationStep{b.homeStep(start)}}
	wr, wa := b.Stack.Placement(wheel)
	current := start
	var skipped []error
	for pi, pass := range passes {
		if err := ctx.Err(); err != nil {
			return MovementPath{}, err
		}
		sol, err := b.Solver.Solve(ctx, pass.Contour, wheel.CuttingRadius, b.Stack.TiltDeg)
		if err != nil {
			if ctx.Err() != nil {
				return MovementPath{}, ctx.Err()
			}
			skipped = append(skipped, &PassError{Kind: kind, Pass: pi, Err: err})
			monitoring.Logf("skipping %s pass %d: %v", kind, pi, err)
			continue
		}
		cut, err := b.cuttingStep(sol, wr, wa, pass, kind, pi)
		if err != nil {
			return MovementPath{}, err
		}
		approach, err := b.linearTransition(current, cut.Start(), StepApproach, b.Config.TravelFeedRate)
		if err != nil {
			return MovementPath{}, err
		}
		path.Steps = append(path.Steps, approach, cut)
		current = cut.End()
	}
	return path, errors.Join(skipped...)
}

// RoughingPath builds the staged roughing motion: a home anchor, then an
// approach and one cutting revolution per pass. The path deliberately ends at
// the final cutting position; the complete-path assembler owns the single
// retract home. Empty or fully skipped pass lists yield a home-only path.
func (b *Builder) RoughingPath(ctx context.Context, passes []PassSpec) (MovementPath, error) {
	wheel, err := b.Stack.WheelFor(StepRoughing)
	if err != nil {
		return MovementPath{}, err
	}
	return b.passSequence(ctx, b.homePosition(), wheel, StepRoughing, passes)
}

// BevelingPath builds the standalone finishing motion: home, approach, one
// bevel revolution, retract to home.
func (b *Builder) BevelingPath(ctx context.Context, final PassSpec) (MovementPath, error) {
	return b.bevelingFrom(ctx, b.homePosition(), final)
}

// bevelingFrom builds the finishing motion anchored at start, which for a
// complete path is wherever roughing ended.
func (b *Builder) bevelingFrom(ctx context.Context, start Position, final PassSpec) (MovementPath, error) {
	wheel, err := b.Stack.WheelFor(StepBeveling)
	if err != nil {
		return MovementPath{}, err
	}
	path, buildErr := b.passSequence(ctx, start, wheel, StepBeveling, []PassSpec{final})
	if len(path.Steps) <= 1 {
		// The bevel pass was skipped (or the build aborted): no cut to
		// retract from.
		return path, buildErr
	}
	end, _ := path.End()
	retract, err := b.linearTransition(end, b.homePosition(), StepRetract, b.Config.TravelFeedRate)
	if err != nil {
		return MovementPath{}, err
	}
	path.Steps = append(path.Steps, retract)
	return path, buildErr
}

// CompletePath builds the full machining sequence: staged roughing, then the
// bevel picked up from wherever roughing ended, then the single final
// retract. The beveling sub-path's home anchor is dropped on concatenation so
// the complete path is positionally continuous at the junction. With no
// roughing passes the result degenerates to the standalone beveling path.
func (b *Builder) CompletePath(ctx context.Context, passes []PassSpec, final PassSpec) (CompletePath, error) {
	var errs []error
	rough, rerr := b.RoughingPath(ctx, passes)
	if rerr != nil {
		if len(rough.Steps) == 0 {
			return CompletePath{}, rerr
		}
		errs = append(errs, rerr)
	}
	start := b.homePosition()
	if end, ok := rough.End(); ok {
		start = end
	}
	bevel, berr := b.bevelingFrom(ctx, start, final)
	if berr != nil {
		if len(bevel.Steps) == 0 {
			return CompletePath{}, berr
		}
		errs = append(errs, berr)
	}
	steps := make([]OperationStep, 0, len(rough.Steps)+len(bevel.Steps)-1)
	steps = append(steps, rough.Steps...)
	steps = append(steps, bevel.Steps[1:]...)
	complete := MovementPath{Steps: steps}
	return CompletePath{
		Roughing: rough,
		Beveling: bevel,
		Complete: complete,
		Segments: Segments(complete),
	}, errors.Join(errs...)
}
