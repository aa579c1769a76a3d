package cam

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// ProfilePoint is one sample of a wheel's cross-section: the radial offset of
// the grinding surface from the nominal cutting radius at a given axial
// height relative to the wheel's cutting plane.
type ProfilePoint struct {
	Offset float64 `json:"offset_mm"` // radial offset from cutting radius (mm)
	Height float64 `json:"height_mm"` // axial height from cutting plane (mm)
}

// WheelProfile is a wheel cross-section. Order does not matter on input; the
// interpolator sorts by height.
type WheelProfile []ProfilePoint

// ProfileInterpolator evaluates a profile's radial offset at an axial height.
// Heights outside the profile span return -Inf: no surface there, no cut.
type ProfileInterpolator struct {
	pl       interp.PiecewiseLinear
	min, max float64
}

// NewProfileInterpolator builds the piecewise-linear evaluator for p. At
// least two points are required and heights must not repeat.
func NewProfileInterpolator(p WheelProfile) (*ProfileInterpolator, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("wheel profile needs at least 2 points, got %d", len(p))
	}
	pts := append(WheelProfile(nil), p...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Height < pts[j].Height })
	hs := make([]float64, len(pts))
	offs := make([]float64, len(pts))
	for i, pt := range pts {
		if i > 0 && pt.Height == pts[i-1].Height {
			return nil, fmt.Errorf("wheel profile has duplicate height %v", pt.Height)
		}
		hs[i] = pt.Height
		offs[i] = pt.Offset
	}
	var pi ProfileInterpolator
	if err := pi.pl.Fit(hs, offs); err != nil {
		return nil, fmt.Errorf("fit wheel profile: %w", err)
	}
	pi.min, pi.max = hs[0], hs[len(hs)-1]
	return &pi, nil
}

// Offset returns the radial offset at height h, or -Inf outside the profile.
func (p *ProfileInterpolator) Offset(h float64) float64 {
	if h < p.min || h > p.max {
		return math.Inf(-1)
	}
	return p.pl.Predict(h)
}

// Span returns the height range the profile covers.
func (p *ProfileInterpolator) Span() (min, max float64) { return p.min, p.max }

// Wheel describes one grinding wheel mounted on the tool stack.
type Wheel struct {
	ID            string       `json:"id"`                     // catalog identifier, e.g. "rough_glass"
	Name          string       `json:"name"`                   // operator-facing label
	StackOffset   float64      `json:"stack_z_offset_mm"`      // stack base to wheel datum along the tool axis (mm)
	CuttingRadius float64      `json:"cutting_radius_mm"`      // nominal radius at the cutting plane (mm)
	CuttingHeight float64      `json:"cutting_z_relative_mm"`  // wheel datum to cutting plane along the axis (mm)
	Profile       WheelProfile `json:"profile"`                // cross-section samples
}

// AxisOffset returns the distance from the stack base to the wheel's cutting
// plane along the tool axis.
func (w Wheel) AxisOffset() float64 { return w.StackOffset + w.CuttingHeight }

// ToolStack is the tilted spindle carrying the grinding wheels. By convention
// wheel 0 roughs and wheel 1 finishes (bevel).
type ToolStack struct {
	TiltDeg float64    `json:"tilt_deg"`         // tool-axis tilt toward the lens axis (degrees)
	Base    [3]float64 `json:"base_position_mm"` // stack base in machine coordinates (mm)
	Wheels  []Wheel    `json:"wheels"`
}

// Validate checks stack geometry before it is used by the builder or the
// simulator.
func (ts ToolStack) Validate() error {
	if ts.TiltDeg <= 0 || ts.TiltDeg >= 45 {
		return fmt.Errorf("tool tilt %.1f° out of range (0°, 45°)", ts.TiltDeg)
	}
	if len(ts.Wheels) == 0 {
		return fmt.Errorf("tool stack has no wheels")
	}
	for _, w := range ts.Wheels {
		if w.CuttingRadius <= 0 {
			return fmt.Errorf("wheel %q: cutting radius must be positive", w.ID)
		}
		if _, err := NewProfileInterpolator(w.Profile); err != nil {
			return fmt.Errorf("wheel %q: %w", w.ID, err)
		}
	}
	return nil
}

// WheelFor maps a cutting step kind to the wheel that performs it.
func (ts ToolStack) WheelFor(kind StepKind) (Wheel, error) {
	switch kind {
	case StepRoughing:
		if len(ts.Wheels) < 1 {
			return Wheel{}, fmt.Errorf("tool stack has no roughing wheel")
		}
		return ts.Wheels[0], nil
	case StepBeveling:
		if len(ts.Wheels) < 2 {
			return Wheel{}, fmt.Errorf("tool stack has no bevel wheel")
		}
		return ts.Wheels[1], nil
	default:
		return Wheel{}, fmt.Errorf("no wheel for step kind %q", kind)
	}
}

// Placement returns the machine-frame position of the wheel's cutting plane
// at zero carriage offset: the stack base displaced along the tilted axis.
func (ts ToolStack) Placement(w Wheel) (radial, axial float64) {
	tilt := ts.TiltDeg * math.Pi / 180
	off := w.AxisOffset()
	return ts.Base[0] - off*math.Sin(tilt), ts.Base[2] + off*math.Cos(tilt)
}

// StandardStack returns the two-wheel stack fitted to the reference machine:
// an 18° tilt, a flat roughing wheel and a V-profile bevel wheel.
func StandardStack() ToolStack {
	return ToolStack{
		TiltDeg: 18.0,
		Base:    [3]float64{100.0, 0.0, -150.0},
		Wheels: []Wheel{
			{
				ID:            "rough_glass",
				Name:          "Roughing (glass)",
				StackOffset:   10.0,
				CuttingRadius: 63.3,
				CuttingHeight: 8.4,
				Profile: WheelProfile{
					{Offset: -3.09, Height: 9.51},
					{Offset: 3.09, Height: -9.51},
				},
			},
			{
				ID:            "bevel_std",
				Name:          "Standard V-bevel",
				StackOffset:   26.8,
				CuttingRadius: 45.0,
				CuttingHeight: 7.5,
				Profile: WheelProfile{
					{Offset: -1.797, Height: 9.045},
					{Offset: 0.678, Height: 1.427},
					{Offset: 0.0, Height: -0.371},
					{Offset: 1.604, Height: -1.427},
					{Offset: 4.097, Height: -9.045},
				},
			},
		},
	}
}
