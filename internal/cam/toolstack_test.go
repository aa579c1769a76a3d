package cam

import (
	"math"
	"testing"
)

func TestProfileInterpolatorFlatWheel(t *testing.T) {
	prof := WheelProfile{
		{Offset: -3.09, Height: 9.51},
		{Offset: 3.09, Height: -9.51},
	}
	pi, err := NewProfileInterpolator(prof)
	if err != nil {
		t.Fatalf("NewProfileInterpolator: %v", err)
	}

	tests := []struct {
		name   string
		height float64
		want   float64
	}{
		{"bottom_edge", -9.51, 3.09},
		{"top_edge", 9.51, -3.09},
		{"midplane", 0, 0},
		{"quarter", -4.755, 1.545},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pi.Offset(tt.height)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Offset(%v) = %v, want %v", tt.height, got, tt.want)
			}
		})
	}
}

func TestProfileInterpolatorOutOfRange(t *testing.T) {
	pi, err := NewProfileInterpolator(StandardStack().Wheels[1].Profile)
	if err != nil {
		t.Fatalf("NewProfileInterpolator: %v", err)
	}
	for _, h := range []float64{-9.046, 9.046, -100, 100} {
		if got := pi.Offset(h); !math.IsInf(got, -1) {
			t.Errorf("Offset(%v) = %v, want -Inf", h, got)
		}
	}
	min, max := pi.Span()
	if min != -9.045 || max != 9.045 {
		t.Errorf("Span() = (%v, %v), want (-9.045, 9.045)", min, max)
	}
}

func TestProfileInterpolatorVApex(t *testing.T) {
	// The bevel profile has an exact sample at the V apex.
	pi, err := NewProfileInterpolator(StandardStack().Wheels[1].Profile)
	if err != nil {
		t.Fatalf("NewProfileInterpolator: %v", err)
	}
	if got := pi.Offset(-0.371); math.Abs(got) > 1e-9 {
		t.Errorf("Offset at V apex = %v, want 0", got)
	}
}

func TestProfileInterpolatorErrors(t *testing.T) {
	tests := []struct {
		name string
		prof WheelProfile
	}{
		{"empty", nil},
		{"single_point", WheelProfile{{Offset: 1, Height: 0}}},
		{"duplicate_height", WheelProfile{{Offset: 1, Height: 2}, {Offset: 3, Height: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProfileInterpolator(tt.prof); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestToolStackValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ToolStack)
		wantErr bool
	}{
		{"standard_stack", func(*ToolStack) {}, false},
		{"zero_tilt", func(ts *ToolStack) { ts.TiltDeg = 0 }, true},
		{"excessive_tilt", func(ts *ToolStack) { ts.TiltDeg = 60 }, true},
		{"no_wheels", func(ts *ToolStack) { ts.Wheels = nil }, true},
		{"zero_radius", func(ts *ToolStack) { ts.Wheels[0].CuttingRadius = 0 }, true},
		{"bad_profile", func(ts *ToolStack) { ts.Wheels[1].Profile = ts.Wheels[1].Profile[:1] }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := StandardStack()
			tt.mutate(&ts)
			err := ts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWheelFor(t *testing.T) {
	ts := StandardStack()

	rough, err := ts.WheelFor(StepRoughing)
	if err != nil || rough.ID != "rough_glass" {
		t.Errorf("WheelFor(roughing) = %q, %v; want rough_glass", rough.ID, err)
	}

	bevel, err := ts.WheelFor(StepBeveling)
	if err != nil || bevel.ID != "bevel_std" {
		t.Errorf("WheelFor(beveling) = %q, %v; want bevel_std", bevel.ID, err)
	}

	if _, err := ts.WheelFor(StepApproach); err == nil {
		t.Error("WheelFor(approach) should fail")
	}

	ts.Wheels = ts.Wheels[:1]
	if _, err := ts.WheelFor(StepBeveling); err == nil {
		t.Error("WheelFor(beveling) on single-wheel stack should fail")
	}
}

func TestPlacement(t *testing.T) {
	ts := StandardStack()
	w := ts.Wheels[0]

	wr, wa := ts.Placement(w)

	tilt := ts.TiltDeg * math.Pi / 180
	off := w.StackOffset + w.CuttingHeight
	wantR := ts.Base[0] - off*math.Sin(tilt)
	wantA := ts.Base[2] + off*math.Cos(tilt)
	if math.Abs(wr-wantR) > 1e-12 || math.Abs(wa-wantA) > 1e-12 {
		t.Errorf("Placement() = (%v, %v), want (%v, %v)", wr, wa, wantR, wantA)
	}
	if math.Abs(w.AxisOffset()-18.4) > 1e-12 {
		t.Errorf("AxisOffset() = %v, want 18.4", w.AxisOffset())
	}
}
