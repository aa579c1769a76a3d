package cam

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// RoughingMethod selects how intermediate roughing contours step from the
// blank circle down to the final contour.
type RoughingMethod string

const (
	// Concentric shrinks the largest remaining radius by the step and clamps
	// to the final contour, keeping early passes circular.
	Concentric RoughingMethod = "concentric"
	// Interpolation blends every sample toward the final contour by the
	// fraction the step represents of the 12 o'clock gap.
	Interpolation RoughingMethod = "interpolation"
)

// StepSpec describes one stage of a staged roughing plan.
type StepSpec struct {
	StepMm         float64 `json:"step_mm"` // radial bite of the stage
	SpindlePeriod  float64 `json:"spindle_period_s"`
	MaxRemovalRate float64 `json:"max_removal_rate"`
}

// RoughingSteps expands a staged roughing plan into per-pass contours between
// the blank circle and the final contour. The final contour's height map, if
// present, rides along unchanged: the axial seat curve belongs to the lens,
// not to any single pass. Stages that no longer remove material still emit a
// pass; zero-removal passes are legal.
func RoughingSteps(final Contour, blankRadius float64, method RoughingMethod, steps []StepSpec) ([]PassSpec, error) {
	if err := final.validate(); err != nil {
		return nil, err
	}
	if blankRadius <= 0 {
		return nil, fmt.Errorf("blank radius %v must be positive", blankRadius)
	}
	n := len(final.Radii)
	current := make([]float64, n)
	for i := range current {
		current[i] = blankRadius
	}
	passes := make([]PassSpec, 0, len(steps))
	for si, st := range steps {
		if st.StepMm <= 0 {
			return nil, fmt.Errorf("roughing stage %d: step %v must be positive", si, st.StepMm)
		}
		next := make([]float64, n)
		switch method {
		case Concentric:
			target := floats.Max(current) - st.StepMm
			for i := range next {
				next[i] = math.Max(final.Radii[i], target)
			}
		case Interpolation:
			idx := n / 4 // the 12 o'clock sample
			gap := current[idx] - final.Radii[idx]
			t := 1.0
			if gap > 1e-9 {
				t = math.Min(st.StepMm/gap, 1)
			}
			for i := range next {
				v := current[i] - t*(current[i]-final.Radii[i])
				next[i] = math.Max(v, final.Radii[i])
			}
		default:
			return nil, fmt.Errorf("unknown roughing method %q", method)
		}
		var heights []float64
		if final.Heights != nil {
			heights = append([]float64(nil), final.Heights...)
		}
		passes = append(passes, PassSpec{
			Contour:        Contour{Radii: next, Heights: heights},
			SpindlePeriod:  st.SpindlePeriod,
			MaxRemovalRate: st.MaxRemovalRate,
		})
		current = next
	}
	return passes, nil
}

// CircleContour is a convenience constructor for a circular contour of the
// given radius with n samples.
func CircleContour(radius float64, n int) Contour {
	radii := make([]float64, n)
	for i := range radii {
		radii[i] = radius
	}
	return Contour{Radii: radii}
}
