// Package cam implements the motion-planning core for a lens-blank edging
// machine: tool-stack geometry, contact kinematics, and the builder that
// stitches per-pass cutting motion into a timed movement path.
//
// Coordinate conventions. The machine frame is three-axis: radial (carriage
// X, mm), axial (spindle Z, mm), and the lens spindle angle (degrees). A path
// sample is the position of the active cutting point in machine coordinates.
// The simulator packages (blank, collision, analysis) consume the flattened
// PathFrames record produced here; the exporters and the API serve it.
package cam
