// Package state persists the documents vtranscoder shares with external
// readers such as a settings UI: the processed-file History, the live
// ProgressSnapshot, and the StopSignal marker.
//
// Every write replaces the whole document atomically and serialises through
// a flock lock file next to it, so a reader never sees a torn file and two
// writers never interleave a read-modify-write. Readers take no lock and may
// observe a slightly stale document.
package state
