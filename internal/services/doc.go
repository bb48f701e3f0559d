// Package services defines shared utilities consumed by the engine stages and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and source paths for
//     logging.
//   - Structured error markers plus the Wrap helper that separate fatal
//     configuration problems from per-file failures.
//   - The Outcome type returned by subtitle and encode stages so callers can
//     tell success, failure, cancellation, and skips apart without panics.
package services
