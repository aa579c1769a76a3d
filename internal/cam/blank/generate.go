package blank

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Params describes an uncut lens blank: a cylinder of material bounded by a
// convex front sphere and a concave back sphere. The lens front apex sits at
// z=0 with +Z running toward the back surface.
type Params struct {
	FrontRadius     float64 `json:"front_radius_mm"`
	BackRadius      float64 `json:"back_radius_mm"`
	CenterThickness float64 `json:"center_thickness_mm"`
	Diameter        float64 `json:"diameter_mm"`
	Resolution      float64 `json:"resolution_mm"`
	EdgeSmoothing   float64 `json:"edge_smoothing_mm"`
}

// DefaultParams returns the demo blank: a 70 mm puck with a 500 mm front
// curve, a 100 mm back curve and 2 mm of center thickness, sampled at 0.2 mm.
func DefaultParams() Params {
	return Params{
		FrontRadius:     500,
		BackRadius:      100,
		CenterThickness: 2,
		Diameter:        70,
		Resolution:      0.2,
	}
}

// Validate checks the blank geometry.
func (p Params) Validate() error {
	switch {
	case p.FrontRadius <= 0:
		return fmt.Errorf("blank front radius %v must be positive", p.FrontRadius)
	case p.BackRadius <= 0:
		return fmt.Errorf("blank back radius %v must be positive", p.BackRadius)
	case p.CenterThickness <= 0:
		return fmt.Errorf("blank center thickness %v must be positive", p.CenterThickness)
	case p.Diameter <= 0:
		return fmt.Errorf("blank diameter %v must be positive", p.Diameter)
	case p.Resolution <= 0:
		return fmt.Errorf("blank resolution %v must be positive", p.Resolution)
	case p.EdgeSmoothing < 0:
		return fmt.Errorf("blank edge smoothing %v must not be negative", p.EdgeSmoothing)
	}
	return nil
}

// BackSag returns the sagitta of the back surface at the blank's rim. A back
// radius smaller than the blank's own radius degenerates to the full sag.
func (p Params) BackSag() float64 {
	half := p.Diameter / 2
	return p.BackRadius - math.Sqrt(math.Max(0, p.BackRadius*p.BackRadius-half*half))
}

// bounds returns the sampled region: the blank plus a margin so the surface
// never touches the grid wall.
func (p Params) bounds() (x, y, z float64) {
	return p.Diameter + 1, p.Diameter + 1, p.BackSag() + p.CenterThickness + 1
}

// invertedSphere is material OUTSIDE a sphere: d = R - |p - c|. It scoops
// the concave back surface out of the blank. The inversion is unbounded, so
// the bounding box is pinned to the sampled region.
type invertedSphere struct {
	center v3.Vec
	radius float64
	bb     sdf.Box3
}

func (s *invertedSphere) Evaluate(p v3.Vec) float64 {
	return s.radius - p.Sub(s.center).Length()
}

func (s *invertedSphere) BoundingBox() sdf.Box3 { return s.bb }

// composite builds the blank's signed distance field: edge cylinder ∩ front
// sphere ∩ inverted back sphere.
func (p Params) composite() (sdf.SDF3, error) {
	bx, by, bz := p.bounds()

	cyl, err := sdf.Cylinder3D(4*(bz+1), p.Diameter/2, 0)
	if err != nil {
		return nil, fmt.Errorf("blank edge cylinder: %w", err)
	}
	front, err := sdf.Sphere3D(p.FrontRadius)
	if err != nil {
		return nil, fmt.Errorf("blank front sphere: %w", err)
	}
	front = sdf.Transform3D(front, sdf.Translate3d(v3.Vec{X: 0, Y: 0, Z: p.FrontRadius}))
	back := &invertedSphere{
		center: v3.Vec{X: 0, Y: 0, Z: p.CenterThickness + p.BackRadius},
		radius: p.BackRadius,
		bb: sdf.Box3{
			Min: v3.Vec{X: -bx / 2, Y: -by / 2, Z: 0},
			Max: v3.Vec{X: bx / 2, Y: by / 2, Z: bz},
		},
	}
	return sdf.Intersect3D(sdf.Intersect3D(cyl, front), back), nil
}

// Generate samples the blank onto a fresh grid. Cells are material where the
// composite field is non-positive; with EdgeSmoothing s > 0, cells within s
// of the surface get a linear ramp instead of the hard threshold. The ramp
// is an export nicety and is stripped again by Grid.Binarized before any
// cutting math sees it.
func Generate(p Params) (*Grid, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	field, err := p.composite()
	if err != nil {
		return nil, err
	}

	bx, by, bz := p.bounds()
	dims := [3]int{
		int(math.Ceil(bx / p.Resolution)),
		int(math.Ceil(by / p.Resolution)),
		int(math.Ceil(bz / p.Resolution)),
	}
	spacing := [3]float64{p.Resolution, p.Resolution, p.Resolution}
	origin := [3]float64{
		-float64(dims[0]) * p.Resolution / 2,
		-float64(dims[1]) * p.Resolution / 2,
		0,
	}
	g := NewGrid(dims, spacing, origin)

	for z := 0; z < dims[2]; z++ {
		pz := origin[2] + float64(z)*p.Resolution
		for y := 0; y < dims[1]; y++ {
			py := origin[1] + float64(y)*p.Resolution
			row := (z*dims[1] + y) * dims[0]
			for x := 0; x < dims[0]; x++ {
				px := origin[0] + float64(x)*p.Resolution
				d := field.Evaluate(v3.Vec{X: px, Y: py, Z: pz})
				g.Values[row+x] = scalar(d, p.EdgeSmoothing)
			}
		}
	}
	return g, nil
}

func scalar(d, smoothing float64) float32 {
	if smoothing > 0 && math.Abs(d) <= smoothing {
		return float32(1000 * (1 - (d+smoothing)/(2*smoothing)))
	}
	if d <= 0 {
		return MaterialValue
	}
	return AirValue
}
