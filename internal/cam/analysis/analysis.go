// Package analysis turns a collision death-time grid into material removal
// series: volume remaining over the path, removal volume attributed to each
// frame, and a rate-constrained retiming of the path's time axis.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/opticam-labs/edgesim/internal/cam"
	"github.com/opticam-labs/edgesim/internal/cam/blank"
)

// DefaultMaxRemovalRate is the ceiling in mm³/s applied to frames outside
// every cutting segment and to paths that never set their own.
const DefaultMaxRemovalRate = 100.0

// History is the material volume over the path's sample axis.
type History struct {
	Times           []float64 `json:"time"`
	Remaining       []float64 `json:"volume_remaining"`
	Removed         []float64 `json:"volume_removed"`
	PercentComplete []float64 `json:"percentage_complete"`
	InitialVolume   float64   `json:"initial_volume_mm3"`
}

// VolumeHistory evaluates the death grid against the path's sample axis. A
// cell counts as remaining at sample i while its death value exceeds the
// normalized threshold 1000*i/N, so removal lands between the samples that
// bracket its recorded death. Removed is derived from Remaining, never
// counted separately, so the two always sum to the initial volume.
func VolumeHistory(death *blank.Grid, times []float64) History {
	n := len(times)
	h := History{
		Times:           append([]float64(nil), times...),
		Remaining:       make([]float64, n),
		Removed:         make([]float64, n),
		PercentComplete: make([]float64, n),
	}
	cellVol := death.CellVolume()

	// gone[k] counts cells whose first non-remaining sample index is k, so
	// one pass over the grid and a prefix sum replace a per-threshold
	// rescan.
	gone := make([]int, n+1)
	initial := 0
	for _, v := range death.Values {
		d := float64(v)
		if d <= 0 {
			continue
		}
		initial++
		k := int(math.Ceil(d * float64(n) / float64(blank.MaterialValue)))
		if k < 1 {
			k = 1
		}
		if k > n {
			k = n
		}
		gone[k]++
	}
	h.InitialVolume = float64(initial) * cellVol

	dead := 0
	for i := 0; i < n; i++ {
		dead += gone[i]
		h.Remaining[i] = float64(initial-dead) * cellVol
		h.Removed[i] = h.InitialVolume - h.Remaining[i]
		if initial > 0 {
			h.PercentComplete[i] = h.Removed[i] / h.InitialVolume * 100
		}
	}
	return h
}

// Rates pairs the removal volume attributed to each path frame with the
// rate ceiling in force there.
type Rates struct {
	VolumePerFrame []float64 `json:"volume_per_frame_mm3"`
	MaxAllowed     []float64 `json:"max_allowed_mm3s"`
}

// RemovalRates histograms the death grid onto the path's frame axis and
// forward-fills each frame's ceiling from the cutting segments. Only deaths
// strictly inside (0, 1000) carry removal volume: air and never-cut cells
// contribute nothing. A segment with MaxRemovalRate > 0 sets the ceiling
// from its first frame on; segments without one inherit whatever ceiling is
// already in force, defaultMax before any segment (<= 0 selects
// DefaultMaxRemovalRate).
func RemovalRates(death *blank.Grid, frames cam.PathFrames, segments []cam.PassSegment, defaultMax float64) Rates {
	n := frames.Frames()
	r := Rates{
		VolumePerFrame: make([]float64, n),
		MaxAllowed:     make([]float64, n),
	}
	if n == 0 {
		return r
	}

	cellVol := death.CellVolume()
	for _, v := range death.Values {
		d := float64(v)
		if d <= 0 || d >= float64(blank.MaterialValue) {
			continue
		}
		idx := int(d / float64(blank.MaterialValue) * float64(n))
		if idx < 0 {
			idx = 0
		} else if idx >= n {
			idx = n - 1
		}
		r.VolumePerFrame[idx] += cellVol
	}

	if defaultMax <= 0 {
		defaultMax = DefaultMaxRemovalRate
	}
	last := defaultMax
	for i := 0; i < n; i++ {
		for _, seg := range segments {
			if seg.Contains(i) {
				if seg.MaxRemovalRate > 0 {
					last = seg.MaxRemovalRate
				}
				break
			}
		}
		r.MaxAllowed[i] = last
	}
	return r
}

// PerSecond converts the per-frame removal volumes to instantaneous rates
// against the given time axis. Frames with no elapsed time report 0.
func (r Rates) PerSecond(times []float64) []float64 {
	out := make([]float64, len(r.VolumePerFrame))
	for i := 1; i < len(out) && i < len(times); i++ {
		if dt := times[i] - times[i-1]; dt > 0 {
			out[i] = r.VolumePerFrame[i] / dt
		}
	}
	return out
}

// RetimeForRates stretches the path's time axis so no frame removes material
// faster than its ceiling. Frames already under their ceiling, frames with a
// zero ceiling and zero-dt step boundaries keep their original spacing; the
// first sample anchors the adjusted axis.
func RetimeForRates(times []float64, r Rates) []float64 {
	if len(times) == 0 {
		return nil
	}
	adj := make([]float64, len(times))
	adj[0] = times[0]
	for i := 1; i < len(times); i++ {
		dt := times[i] - times[i-1]
		if dt > 0 && i < len(r.VolumePerFrame) {
			vol := r.VolumePerFrame[i]
			if ceil := r.MaxAllowed[i]; ceil > 0 && vol/dt > ceil {
				dt = vol / ceil
			}
		}
		adj[i] = adj[i-1] + dt
	}
	return adj
}

// Digest condenses a run's analysis into the handful of figures shown in
// listings and stored with a run.
type Digest struct {
	InitialVolume   float64 `json:"initial_volume_mm3"`
	RemovedVolume   float64 `json:"removed_volume_mm3"`
	PercentComplete float64 `json:"percent_complete"`
	PeakRate        float64 `json:"peak_rate_mm3s"`
	MeanRate        float64 `json:"mean_rate_mm3s"`
}

// Summarize reduces a history and rate series over the given time axis.
func Summarize(h History, r Rates, times []float64) Digest {
	d := Digest{InitialVolume: h.InitialVolume}
	if n := len(h.Removed); n > 0 {
		d.RemovedVolume = h.Removed[n-1]
		d.PercentComplete = h.PercentComplete[n-1]
	}
	if rates := r.PerSecond(times); len(rates) > 0 {
		d.PeakRate = floats.Max(rates)
	}
	if n := len(times); n > 1 {
		if dur := times[n-1] - times[0]; dur > 0 {
			d.MeanRate = d.RemovedVolume / dur
		}
	}
	return d
}
