package cam

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Contour is a polar lens contour sampled at uniform spindle angles over one
// revolution: sample i sits at angle 2πi/n. Heights is the per-sample axial
// height of the cutting seat (the bevel apex curve); nil means flat.
type Contour struct {
	Radii   []float64 `json:"radii_mm"`
	Heights []float64 `json:"heights_mm,omitempty"`
}

func (c Contour) validate() error {
	if len(c.Radii) == 0 {
		return fmt.Errorf("%w: no samples", ErrBadContour)
	}
	if c.Heights != nil && len(c.Heights) != len(c.Radii) {
		return fmt.Errorf("%w: %d radii but %d heights", ErrBadContour, len(c.Radii), len(c.Heights))
	}
	for i, r := range c.Radii {
		if math.IsNaN(r) || r <= 0 {
			return fmt.Errorf("%w: radius %v at sample %d", ErrBadContour, r, i)
		}
	}
	return nil
}

// Height returns the axial height at sample i, 0 for flat contours.
func (c Contour) Height(i int) float64 {
	if c.Heights == nil {
		return 0
	}
	return c.Heights[i]
}

// MaxRadius returns the largest sample radius, 0 for an empty contour.
func (c Contour) MaxRadius() float64 {
	m := 0.0
	for _, r := range c.Radii {
		if r > m {
			m = r
		}
	}
	return m
}

// Solution is the machine-frame result of solving one cutting revolution.
// Arrays are parallel; SpindleDeg is non-decreasing and spans the full
// revolution including the closing 360° sample, which makes cutting duration
// independent of how densely the contour was sampled.
type Solution struct {
	SpindleDeg []float64 // lens spindle angle (degrees)
	Radial     []float64 // carriage offset of the contact point (mm)
	Axial      []float64 // spindle-axis offset of the contact point (mm)
}

// Solver produces machine motion for one revolution of a contour cut.
// Solvers may be expensive; the builder invokes them synchronously, one pass
// at a time.
type Solver interface {
	Solve(ctx context.Context, c Contour, cutterRadius, tiltDeg float64) (Solution, error)
}

// Errors crossing the kinematics boundary.
var (
	ErrBadContour         = errors.New("contour is empty or has non-positive radii")
	ErrUnreachableContour = errors.New("no contact solution for contour")
)

// ContactSolver is the reference Solver. For every machine angle it rotates
// the contour into the tool frame and takes the maximum projection of the
// wheel-centre locus: the carriage position at which the tilted wheel grazes
// the contour without gouging any trailing lobe.
type ContactSolver struct{}

// Solve implements Solver.
func (ContactSolver) Solve(ctx context.Context, c Contour, cutterRadius, tiltDeg float64) (Solution, error) {
	if err := c.validate(); err != nil {
		return Solution{}, err
	}
	if cutterRadius <= 0 {
		return Solution{}, fmt.Errorf("cutter radius %v must be positive", cutterRadius)
	}
	n := len(c.Radii)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, r := range c.Radii {
		a := 2 * math.Pi * float64(i) / float64(n)
		xs[i] = r * math.Cos(a)
		ys[i] = r * math.Sin(a)
	}
	tilt := tiltDeg * math.Pi / 180
	b := cutterRadius * math.Cos(tilt)
	tanTilt := math.Tan(tilt)

	out := Solution{
		SpindleDeg: make([]float64, n+1),
		Radial:     make([]float64, n+1),
		Axial:      make([]float64, n+1),
	}
	anyContact := false
	for k := 0; k <= n; k++ {
		if k%64 == 0 {
			if err := ctx.Err(); err != nil {
				return Solution{}, err
			}
		}
		theta := 2 * math.Pi * float64(k) / float64(n)
		cosT := math.Cos(-theta)
		sinT := math.Sin(-theta)

		best := math.Inf(-1)
		bestIdx := -1
		bestX := 0.0
		for i := 0; i < n; i++ {
			xr := xs[i]*cosT - ys[i]*sinT
			yr := xs[i]*sinT + ys[i]*cosT
			if math.Abs(yr) >= cutterRadius {
				continue
			}
			term := 1 - yr*yr/(cutterRadius*cutterRadius)
			if term < 0 {
				term = 0
			}
			cx := xr + b*math.Sqrt(term)
			if cx > best {
				best = cx
				bestIdx = i
				bestX = xr
			}
		}
		out.SpindleDeg[k] = theta * 180 / math.Pi
		if bestIdx < 0 {
			// No contour point under the wheel at this angle: park clear.
			out.Radial[k] = cutterRadius + 100
			out.Axial[k] = 0
			continue
		}
		anyContact = true
		tiltZ := (best - bestX) * tanTilt
		out.Radial[k] = best
		out.Axial[k] = -c.Height(bestIdx) - tiltZ
	}
	if !anyContact {
		return Solution{}, fmt.Errorf("%w: cutter radius %.6g", ErrUnreachableContour, cutterRadius)
	}
	return out, nil
}
