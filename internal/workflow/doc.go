// Package workflow hosts the run loop that drives the engine.
//
// Loop reloads settings on every iteration, honours the schedule window and
// drains pending jobs one at a time through the subtitle resolver and the
// encode orchestrator. Sleeps end early when the stop marker appears or a
// watched file changes. A stop request ends Run with ErrStopRequested; a
// configuration error ends it with a fatal error; anything else is logged
// and retried after a cooldown.
//
// At startup Loop repairs the state left by a crash mid-job: the partial
// output is removed unless history shows it finished, and the progress
// document is reset.
package workflow
