package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opticam-labs/edgesim/internal/cam"
)

func sampleFrames() cam.PathFrames {
	return cam.PathFrames{
		Radial:  []float64{-50, 28, 28, -50},
		Axial:   []float64{0, -152.06, -152.06, 0},
		Spindle: []float64{0, 0, 360, 360},
		Time:    []float64{0, 0.5, 12.5, 14},
	}
}

func sampleSegments() []cam.PassSegment {
	return []cam.PassSegment{
		{Start: 1, End: 2, Kind: cam.StepRoughing, Pass: 0, MaxRemovalRate: 40},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleFrames()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	want := strings.Join([]string{
		"frame_index,time_sec,x_mm,z_mm,theta_deg",
		"0,0.000000,-50.000000,0.000000,0.000000",
		"1,0.500000,28.000000,-152.060000,0.000000",
		"2,12.500000,28.000000,-152.060000,360.000000",
		"3,14.000000,-50.000000,0.000000,360.000000",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("CSV output:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteCSVMismatchedArrays(t *testing.T) {
	frames := sampleFrames()
	frames.Spindle = frames.Spindle[:2]
	if err := WriteCSV(&bytes.Buffer{}, frames); err == nil {
		t.Fatal("expected error for mismatched arrays")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	if err := WriteJSON(&buf, sampleFrames(), sampleSegments(), at); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var doc struct {
		Metadata struct {
			GeneratedAt string  `json:"generated_at"`
			FrameCount  int     `json:"frame_count"`
			DurationSec float64 `json:"duration_sec"`
		} `json:"metadata"`
		Path struct {
			X     []float64 `json:"x_mm"`
			Z     []float64 `json:"z_mm"`
			Theta []float64 `json:"theta_deg"`
			Time  []float64 `json:"time_sec"`
		} `json:"path"`
		Segments []struct {
			Start     int    `json:"start_idx"`
			End       int    `json:"end_idx"`
			Operation string `json:"operation"`
		} `json:"pass_segments"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}

	if doc.Metadata.GeneratedAt != "2026-03-14T09:30:00Z" {
		t.Errorf("generated_at = %q", doc.Metadata.GeneratedAt)
	}
	if doc.Metadata.FrameCount != 4 || doc.Metadata.DurationSec != 14 {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if len(doc.Path.X) != 4 || len(doc.Path.Time) != 4 {
		t.Errorf("path arrays truncated: %d/%d", len(doc.Path.X), len(doc.Path.Time))
	}
	if len(doc.Segments) != 1 || doc.Segments[0].Operation != "roughing" {
		t.Errorf("pass_segments = %+v", doc.Segments)
	}
}

func TestWriteJSONEmptySegments(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleFrames(), nil, time.Unix(0, 0).UTC()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"pass_segments": []`) {
		t.Error("nil segments should export as an empty array")
	}
}

func TestSummary(t *testing.T) {
	got := Summary(sampleFrames(), sampleSegments())
	want := PathSummary{
		FrameCount:     4,
		DurationSec:    14,
		RadialMin:      -50,
		RadialMax:      28,
		AxialMin:       -152.06,
		AxialMax:       0,
		RoughingPasses: 1,
		Segments: []SegmentSummary{
			{Kind: cam.StepRoughing, Frames: 2, StartSec: 0.5, EndSec: 12.5, MaxRemovalRate: 40},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summary mismatch (-want +got):\n%s", diff)
	}
}

func TestSummaryString(t *testing.T) {
	s := Summary(sampleFrames(), sampleSegments()).String()
	for _, want := range []string{
		"tool path: 4 frames, 14.0 s",
		"radial span [-50.000, 28.000] mm",
		"passes: 1 roughing, 0 beveling",
		"1. roughing pass 0: 2 frames, 0.5-12.5 s, max 40 mm³/s",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q in:\n%s", want, s)
		}
	}
}

func TestSummaryEmptyPath(t *testing.T) {
	got := Summary(cam.PathFrames{}, nil)
	if got.FrameCount != 0 || got.DurationSec != 0 || got.RadialMin != 0 {
		t.Errorf("empty path summary = %+v", got)
	}
	if !strings.Contains(got.String(), "0 frames") {
		t.Errorf("String() = %q", got.String())
	}
}
