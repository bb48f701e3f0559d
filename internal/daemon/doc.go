// Package daemon coordinates the long-running vtranscoder process.
//
// It wires the configuration watcher, the shared state documents and the
// workflow run loop into a single lifecycle with flock-based locking to
// prevent multiple instances. When api.bind is set the daemon also serves a
// read-only HTTP view of its status, the processed-file history and the
// Prometheus metrics.
//
// Keep orchestration logic here: the processing itself lives in workflow,
// encoding and subtitles while the daemon focuses on startup, shutdown and
// reporting.
package daemon
