// Package blank generates voxelized lens blanks: uncut pucks of lens
// material sampled onto a uniform scalar grid. The grid is the shared
// substrate of the collision simulator and the volume analyzer.
package blank

// Scalar encoding of a cell's contents.
const (
	MaterialValue float32 = 1000
	AirValue      float32 = 0
)

// Grid is a uniform scalar voxel grid. Values is a flat array ordered X
// fastest, then Y, then Z. Cell (x,y,z) samples the point
// Origin + (x,y,z)*Spacing.
type Grid struct {
	Dims    [3]int     `json:"dims"`
	Spacing [3]float64 `json:"spacing_mm"`
	Origin  [3]float64 `json:"origin_mm"`
	Values  []float32  `json:"-"`
}

// NewGrid allocates a zeroed (all air) grid.
func NewGrid(dims [3]int, spacing, origin [3]float64) *Grid {
	return &Grid{
		Dims:    dims,
		Spacing: spacing,
		Origin:  origin,
		Values:  make([]float32, dims[0]*dims[1]*dims[2]),
	}
}

// Len returns the cell count.
func (g *Grid) Len() int { return len(g.Values) }

// Index returns the flat index of cell (x,y,z).
func (g *Grid) Index(x, y, z int) int {
	return (z*g.Dims[1]+y)*g.Dims[0] + x
}

// CellCenter returns the sample coordinate of the cell at flat index i.
func (g *Grid) CellCenter(i int) (x, y, z float64) {
	nx, ny := g.Dims[0], g.Dims[1]
	zi := i / (nx * ny)
	rem := i - zi*nx*ny
	yi := rem / nx
	xi := rem - yi*nx
	return g.Origin[0] + float64(xi)*g.Spacing[0],
		g.Origin[1] + float64(yi)*g.Spacing[1],
		g.Origin[2] + float64(zi)*g.Spacing[2]
}

// CellVolume returns the volume of one cell in mm³.
func (g *Grid) CellVolume() float64 {
	return g.Spacing[0] * g.Spacing[1] * g.Spacing[2]
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{Dims: g.Dims, Spacing: g.Spacing, Origin: g.Origin}
	out.Values = make([]float32, len(g.Values))
	copy(out.Values, g.Values)
	return out
}

// MaterialCount returns the number of cells holding any material.
func (g *Grid) MaterialCount() int {
	n := 0
	for _, v := range g.Values {
		if v > 0 {
			n++
		}
	}
	return n
}

// Binarized returns a copy with every value collapsed to material or air: a
// cell is material iff its value is positive. Edge-smoothing ramps written
// by the generator do not survive, which keeps them out of downstream
// cutting semantics.
func (g *Grid) Binarized() *Grid {
	out := &Grid{Dims: g.Dims, Spacing: g.Spacing, Origin: g.Origin}
	out.Values = make([]float32, len(g.Values))
	for i, v := range g.Values {
		if v > 0 {
			out.Values[i] = MaterialValue
		}
	}
	return out
}
