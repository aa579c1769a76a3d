// Package export renders a built tool path for consumers outside the
// planner: CSV and JSON machine exports and a human-readable summary block.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/opticam-labs/edgesim/internal/cam"
)

var csvHeader = []string{"frame_index", "time_sec", "x_mm", "z_mm", "theta_deg"}

// WriteCSV streams the flattened path as one row per frame.
func WriteCSV(w io.Writer, frames cam.PathFrames) error {
	n := frames.Frames()
	if len(frames.Radial) != n || len(frames.Axial) != n || len(frames.Spindle) != n {
		return fmt.Errorf("path frame arrays disagree: %d/%d/%d/%d",
			len(frames.Radial), len(frames.Axial), len(frames.Spindle), n)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		rec := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(frames.Time[i], 'f', 6, 64),
			strconv.FormatFloat(frames.Radial[i], 'f', 6, 64),
			strconv.FormatFloat(frames.Axial[i], 'f', 6, 64),
			strconv.FormatFloat(frames.Spindle[i], 'f', 6, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonMetadata struct {
	GeneratedAt string  `json:"generated_at"`
	FrameCount  int     `json:"frame_count"`
	DurationSec float64 `json:"duration_sec"`
}

type jsonExport struct {
	Metadata jsonMetadata      `json:"metadata"`
	Path     cam.PathFrames    `json:"path"`
	Segments []cam.PassSegment `json:"pass_segments"`
}

// WriteJSON streams the path with its cutting segments and a small metadata
// envelope, indented for direct inspection.
func WriteJSON(w io.Writer, frames cam.PathFrames, segments []cam.PassSegment, generatedAt time.Time) error {
	if segments == nil {
		segments = []cam.PassSegment{}
	}
	doc := jsonExport{
		Metadata: jsonMetadata{
			GeneratedAt: generatedAt.Format(time.RFC3339),
			FrameCount:  frames.Frames(),
			DurationSec: frames.Duration(),
		},
		Path:     frames,
		Segments: segments,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// SegmentSummary is one cutting segment's share of the path.
type SegmentSummary struct {
	Kind           cam.StepKind `json:"operation"`
	Pass           int          `json:"pass_idx"`
	Frames         int          `json:"frames"`
	StartSec       float64      `json:"start_sec"`
	EndSec         float64      `json:"end_sec"`
	MaxRemovalRate float64      `json:"max_volume_rate"`
}

// PathSummary condenses a built path for listings and CLI output.
type PathSummary struct {
	FrameCount     int              `json:"frame_count"`
	DurationSec    float64          `json:"duration_sec"`
	RadialMin      float64          `json:"radial_min_mm"`
	RadialMax      float64          `json:"radial_max_mm"`
	AxialMin       float64          `json:"axial_min_mm"`
	AxialMax       float64          `json:"axial_max_mm"`
	RoughingPasses int              `json:"num_roughing_passes"`
	BevelingPasses int              `json:"num_beveling_passes"`
	Segments       []SegmentSummary `json:"segments"`
}

// Summary reduces the path and its segments to extents, counts and
// per-segment timing.
func Summary(frames cam.PathFrames, segments []cam.PassSegment) PathSummary {
	s := PathSummary{
		FrameCount:  frames.Frames(),
		DurationSec: frames.Duration(),
	}
	if len(frames.Radial) > 0 {
		s.RadialMin = floats.Min(frames.Radial)
		s.RadialMax = floats.Max(frames.Radial)
	}
	if len(frames.Axial) > 0 {
		s.AxialMin = floats.Min(frames.Axial)
		s.AxialMax = floats.Max(frames.Axial)
	}
	for _, seg := range segments {
		ss := SegmentSummary{
			Kind:           seg.Kind,
			Pass:           seg.Pass,
			Frames:         seg.End - seg.Start + 1,
			MaxRemovalRate: seg.MaxRemovalRate,
		}
		if seg.Start >= 0 && seg.End < len(frames.Time) {
			ss.StartSec = frames.Time[seg.Start]
			ss.EndSec = frames.Time[seg.End]
		}
		switch seg.Kind {
		case cam.StepRoughing:
			s.RoughingPasses++
		case cam.StepBeveling:
			s.BevelingPasses++
		}
		s.Segments = append(s.Segments, ss)
	}
	return s
}

// String renders the summary as an indented block for terminal output.
func (s PathSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tool path: %d frames, %.1f s (%.2f min)\n",
		s.FrameCount, s.DurationSec, s.DurationSec/60)
	fmt.Fprintf(&b, "  radial span [%.3f, %.3f] mm, axial span [%.3f, %.3f] mm\n",
		s.RadialMin, s.RadialMax, s.AxialMin, s.AxialMax)
	fmt.Fprintf(&b, "  passes: %d roughing, %d beveling\n",
		s.RoughingPasses, s.BevelingPasses)
	for i, seg := range s.Segments {
		fmt.Fprintf(&b, "    %d. %s pass %d: %d frames, %.1f-%.1f s",
			i+1, seg.Kind, seg.Pass, seg.Frames, seg.StartSec, seg.EndSec)
		if seg.MaxRemovalRate > 0 {
			fmt.Fprintf(&b, ", max %.0f mm³/s", seg.MaxRemovalRate)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
