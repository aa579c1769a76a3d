package blank

import (
	"bytes"
	"math"
	"testing"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"defaults", func(*Params) {}, false},
		{"smoothing_on", func(p *Params) { p.EdgeSmoothing = 0.3 }, false},
		{"zero_front_radius", func(p *Params) { p.FrontRadius = 0 }, true},
		{"zero_back_radius", func(p *Params) { p.BackRadius = 0 }, true},
		{"zero_thickness", func(p *Params) { p.CenterThickness = 0 }, true},
		{"zero_diameter", func(p *Params) { p.Diameter = 0 }, true},
		{"zero_resolution", func(p *Params) { p.Resolution = 0 }, true},
		{"negative_smoothing", func(p *Params) { p.EdgeSmoothing = -0.1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackSag(t *testing.T) {
	p := DefaultParams()
	// sag = R - sqrt(R² - r²) for R=100, r=35.
	want := 100 - math.Sqrt(100*100-35*35)
	if got := p.BackSag(); math.Abs(got-want) > 1e-12 {
		t.Errorf("BackSag() = %v, want %v", got, want)
	}

	// A back curve tighter than the blank radius degenerates to full sag.
	p.BackRadius = 20
	if got := p.BackSag(); math.Abs(got-20) > 1e-12 {
		t.Errorf("steep BackSag() = %v, want 20", got)
	}
}

func TestGenerateGridGeometry(t *testing.T) {
	p := DefaultParams()
	p.Resolution = 0.5
	g, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// XY bounds are diameter + 1 mm of margin; Z covers sag + thickness + 1.
	wantXY := int(math.Ceil((p.Diameter + 1) / p.Resolution))
	wantZ := int(math.Ceil((p.BackSag() + p.CenterThickness + 1) / p.Resolution))
	if g.Dims[0] != wantXY || g.Dims[1] != wantXY || g.Dims[2] != wantZ {
		t.Errorf("Dims = %v, want [%d %d %d]", g.Dims, wantXY, wantXY, wantZ)
	}
	for i := 0; i < 3; i++ {
		if g.Spacing[i] != p.Resolution {
			t.Errorf("Spacing[%d] = %v, want %v", i, g.Spacing[i], p.Resolution)
		}
	}
	if g.Origin[0] != -float64(g.Dims[0])*p.Resolution/2 || g.Origin[2] != 0 {
		t.Errorf("Origin = %v", g.Origin)
	}

	// The grid wall carries the margin: the outermost XY ring is all air.
	for x := 0; x < g.Dims[0]; x++ {
		if v := g.Values[g.Index(x, 0, 0)]; v != AirValue {
			t.Fatalf("edge cell (%d,0,0) = %v, want air", x, v)
		}
	}
}

func TestGenerateVolumeMatchesAnalytic(t *testing.T) {
	p := DefaultParams()
	g, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Closed form: cylinder of radius a between the front and back spherical
	// caps. ∫0..a r·sqrt(R²-r²) dr = (R³ - (R²-a²)^1.5) / 3.
	a := p.Diameter / 2
	capInt := func(R float64) float64 {
		return (R*R*R - math.Pow(R*R-a*a, 1.5)) / 3
	}
	want := math.Pi*a*a*(p.CenterThickness+p.BackRadius-p.FrontRadius) +
		2*math.Pi*(capInt(p.FrontRadius)-capInt(p.BackRadius))

	got := float64(g.MaterialCount()) * g.CellVolume()
	if rel := math.Abs(got-want) / want; rel > 0.02 {
		t.Errorf("voxel volume %.1f mm³ vs analytic %.1f mm³ (%.2f%% off)", got, want, 100*rel)
	}
}

func TestGenerateEdgeSmoothing(t *testing.T) {
	hard := DefaultParams()
	hard.Resolution = 0.5
	soft := hard
	soft.EdgeSmoothing = 0.6

	hg, err := Generate(hard)
	if err != nil {
		t.Fatalf("Generate(hard): %v", err)
	}
	sg, err := Generate(soft)
	if err != nil {
		t.Fatalf("Generate(soft): %v", err)
	}

	ramp := 0
	for i, v := range sg.Values {
		if v > 0 && v < MaterialValue {
			ramp++
		}
		if hg.Values[i] == MaterialValue && v == AirValue {
			t.Fatalf("smoothing erased material at cell %d", i)
		}
	}
	if ramp == 0 {
		t.Error("smoothing produced no ramp cells")
	}
	for _, v := range hg.Values {
		if v != MaterialValue && v != AirValue {
			t.Fatalf("hard-threshold grid has intermediate value %v", v)
		}
	}

	// Binarizing folds the ramp back into material, so cutting math sees the
	// same blank topology either way.
	if b := sg.Binarized(); b.MaterialCount() < hg.MaterialCount() {
		t.Errorf("binarized soft grid has %d material cells, hard grid %d",
			b.MaterialCount(), hg.MaterialCount())
	}
}

func TestExportSTL(t *testing.T) {
	p := DefaultParams()
	var buf bytes.Buffer
	if err := ExportSTL(&buf, p, 48); err != nil {
		t.Fatalf("ExportSTL: %v", err)
	}

	// Binary STL: 80-byte header, uint32 count, 50 bytes per triangle.
	n := buf.Len()
	if n <= 84 || (n-84)%50 != 0 {
		t.Errorf("stl payload is %d bytes, not a binary triangle soup", n)
	}

	p.Diameter = -1
	if err := ExportSTL(&bytes.Buffer{}, p, 48); err == nil {
		t.Error("invalid params accepted")
	}
}
