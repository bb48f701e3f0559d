// Package encoding turns one discovered source file into its output.
//
// Orchestrator picks a mode from the encoder settings: HandBrake, ffmpeg
// with a probe-driven plan, or a plain copy when transcoding is off. It
// streams the tool's output into the progress document, kills the process
// when the stop marker appears or the context ends, and always leaves
// exactly one history entry for the source behind. Outcome metrics and ntfy
// notifications are emitted from the same place so the run loop only has to
// look at the returned services.Outcome.
package encoding
