// Package collision sweeps a movement path's wheel geometry through a
// voxelized blank and records, per cell, when the grinder first removes it.
//
// The result is a death-time grid sharing the blank's layout: air cells hold
// 0, cells the path never touches keep the material value 1000, and cut
// cells hold the normalized path time of removal scaled to (0, 1000).
// Updates are an elementwise minimum, so frame processing order never
// changes the outcome and grids built from disjoint frame batches combine
// exactly with Merge.
package collision

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/opticam-labs/edgesim/internal/cam"
	"github.com/opticam-labs/edgesim/internal/cam/blank"
	"github.com/opticam-labs/edgesim/internal/monitoring"
	"github.com/opticam-labs/edgesim/internal/timeutil"
)

// DefaultStride is the frame sampling interval when Options.Stride is unset.
const DefaultStride = 5

// softBand is the half-width in mm of the grading band around the wheel
// surface; cuts grade linearly from grazing (0) to fully engaged (1) across
// it.
const softBand = 0.1

const progressEvery = 500

var clock timeutil.Clock = timeutil.RealClock{}

// Options tunes a simulation run.
type Options struct {
	// Stride processes every k-th path frame. The final frame of each
	// cutting segment is always processed regardless. <= 0 selects
	// DefaultStride.
	Stride int
	// Workers splits each frame's cell sweep. <= 0 selects GOMAXPROCS.
	Workers int
	// FrameStart/FrameEnd bound the processed frame window [start, end) for
	// batch splitting; FrameEnd <= 0 means the full path. Batches over
	// disjoint windows recombine with Merge.
	FrameStart int
	FrameEnd   int
}

// toolFrame is one processed frame's wheel geometry, expressed in the lens
// body frame. The lens turns opposite the spindle angle, so mapping the
// fixed machine placement into the body frame rotates it by +theta about
// +Z.
type toolFrame struct {
	ox, oy, oz float64 // wheel stack base
	ax, ay, az float64 // unit wheel axis
	radius     float64 // nominal cutting radius
	off        float64 // stack base to cutting plane along the axis
	prof       *cam.ProfileInterpolator
	scale      float64 // death-time span for this frame index
}

// Simulate runs the path's cutting segments over the blank and returns the
// death-time grid. The blank itself is never modified; the death grid starts
// as its binarized copy. Cancelling ctx abandons the run and returns the
// context's error.
func Simulate(ctx context.Context, bg *blank.Grid, frames cam.PathFrames, segments []cam.PassSegment, stack cam.ToolStack, opts Options) (*blank.Grid, error) {
	if bg == nil {
		return nil, fmt.Errorf("nil blank grid")
	}
	death := bg.Binarized()
	n := frames.Frames()
	if n == 0 || len(segments) == 0 {
		return death, nil
	}
	if len(frames.Radial) != n || len(frames.Axial) != n || len(frames.Spindle) != n {
		return nil, fmt.Errorf("path frame arrays disagree: %d/%d/%d/%d",
			len(frames.Radial), len(frames.Axial), len(frames.Spindle), n)
	}

	stride := opts.Stride
	if stride <= 0 {
		stride = DefaultStride
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	lo, hi := opts.FrameStart, opts.FrameEnd
	if lo < 0 {
		lo = 0
	}
	if hi <= 0 || hi > n {
		hi = n
	}

	// Resolve every segment's wheel geometry up front so a bad stack fails
	// the run before any cells are touched.
	type wheelGeom struct {
		radius, off float64
		prof        *cam.ProfileInterpolator
	}
	geoms := make([]wheelGeom, len(segments))
	for si, seg := range segments {
		w, err := stack.WheelFor(seg.Kind)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", si, err)
		}
		prof, err := cam.NewProfileInterpolator(w.Profile)
		if err != nil {
			return nil, fmt.Errorf("segment %d wheel %q: %w", si, w.ID, err)
		}
		geoms[si] = wheelGeom{radius: w.CuttingRadius, off: w.AxisOffset(), prof: prof}
	}

	tilt := stack.TiltDeg * math.Pi / 180
	sinTilt, cosTilt := math.Sin(tilt), math.Cos(tilt)

	cells := death.Len()
	chunk := (cells + workers - 1) / workers
	processed := 0
	started := clock.Now()

	for si, seg := range segments {
		monitoring.Debugf("collision: segment %d (%s pass %d) frames %d-%d",
			si, seg.Kind, seg.Pass, seg.Start, seg.End)
		start := seg.Start
		if start < lo {
			start = lo
		}
		for i := start; i <= seg.End && i < hi; i++ {
			if i%stride != 0 && i != seg.End {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			theta := frames.Spindle[i] * math.Pi / 180
			cosT, sinT := math.Cos(theta), math.Sin(theta)
			mr := stack.Base[0] - frames.Radial[i]
			ma := stack.Base[2] - frames.Axial[i]
			tf := toolFrame{
				ox:     mr * cosT,
				oy:     mr * sinT,
				oz:     ma,
				ax:     -sinTilt * cosT,
				ay:     -sinTilt * sinT,
				az:     cosTilt,
				radius: geoms[si].radius,
				off:    geoms[si].off,
				prof:   geoms[si].prof,
				scale:  (float64(n-i) + 0.5) / float64(n) * 1000,
			}

			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				cs := w * chunk
				if cs >= cells {
					break
				}
				ce := cs + chunk
				if ce > cells {
					ce = cells
				}
				wg.Add(1)
				go func(cs, ce int) {
					defer wg.Done()
					carveRange(death, &tf, cs, ce)
				}(cs, ce)
			}
			wg.Wait()

			processed++
			if processed%progressEvery == 0 {
				elapsed := clock.Since(started).Seconds()
				if elapsed <= 0 {
					elapsed = 1e-9
				}
				monitoring.Logf("collision: %d frames processed (%.1f frames/s)", processed, float64(processed)/elapsed)
			}
		}
	}
	return death, nil
}

// carveRange tests the cells of [cs, ce) against one tool frame and applies
// minimum death-time updates. Ranges are disjoint across workers, so no
// locking is needed.
func carveRange(death *blank.Grid, tf *toolFrame, cs, ce int) {
	nx, ny := death.Dims[0], death.Dims[1]
	sx, sy, sz := death.Spacing[0], death.Spacing[1], death.Spacing[2]

	zi := cs / (nx * ny)
	rem := cs - zi*nx*ny
	yi := rem / nx
	xi := rem - yi*nx
	cx := death.Origin[0] + float64(xi)*sx
	cy := death.Origin[1] + float64(yi)*sy
	cz := death.Origin[2] + float64(zi)*sz

	for idx := cs; idx < ce; idx++ {
		if death.Values[idx] > 0 {
			vx := cx - tf.ox
			vy := cy - tf.oy
			vz := cz - tf.oz
			h := vx*tf.ax + vy*tf.ay + vz*tf.az
			d2 := vx*vx + vy*vy + vz*vz - h*h
			if d2 < 0 {
				d2 = 0
			}
			d := math.Sqrt(d2)
			surf := tf.radius + tf.prof.Offset(h-tf.off)
			if m := d - surf; m < softBand {
				if m < -softBand {
					m = -softBand
				}
				g := (1 - m/softBand) / 2
				if cand := float32(1000 - g*tf.scale); cand < death.Values[idx] {
					death.Values[idx] = cand
				}
			}
		}

		xi++
		cx += sx
		if xi == nx {
			xi = 0
			cx = death.Origin[0]
			yi++
			cy += sy
			if yi == ny {
				yi = 0
				cy = death.Origin[1]
				cz += sz
			}
		}
	}
}

// Merge folds src into dst by elementwise minimum. The grids must share
// dims.
func Merge(dst, src *blank.Grid) error {
	if dst == nil || src == nil {
		return fmt.Errorf("nil grid")
	}
	if dst.Dims != src.Dims || len(dst.Values) != len(src.Values) {
		return fmt.Errorf("grid shape mismatch: %v vs %v", dst.Dims, src.Dims)
	}
	for i, v := range src.Values {
		if v < dst.Values[i] {
			dst.Values[i] = v
		}
	}
	return nil
}
