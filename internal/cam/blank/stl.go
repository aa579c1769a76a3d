package blank

import (
	"fmt"
	"io"

	"github.com/deadsy/sdfx/render"
	"github.com/hschendel/stl"
)

const defaultMeshCells = 200

// ExportSTL meshes the blank surface with marching cubes and writes a binary
// STL. meshCells sets the tessellation resolution along the longest axis;
// values <= 0 select a preview-quality default. The mesh is for bench checks
// and viewers, not for cutting math.
func ExportSTL(w io.Writer, p Params, meshCells int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	field, err := p.composite()
	if err != nil {
		return err
	}
	if meshCells <= 0 {
		meshCells = defaultMeshCells
	}

	tris := render.ToTriangles(field, render.NewMarchingCubesUniform(meshCells))
	if len(tris) == 0 {
		return fmt.Errorf("blank meshed to zero triangles")
	}

	solid := stl.Solid{Name: "lens_blank"}
	solid.Triangles = make([]stl.Triangle, 0, len(tris))
	for _, tri := range tris {
		n := tri.Normal()
		out := stl.Triangle{
			Normal: stl.Vec3{float32(n.X), float32(n.Y), float32(n.Z)},
		}
		for j := 0; j < 3; j++ {
			out.Vertices[j] = stl.Vec3{float32(tri[j].X), float32(tri[j].Y), float32(tri[j].Z)}
		}
		solid.Triangles = append(solid.Triangles, out)
	}
	if err := solid.WriteAll(w); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	return nil
}
