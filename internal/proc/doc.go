// Package proc runs the external tools vtranscoder drives (HandBrakeCLI and
// ffmpeg) and streams their output line by line.
//
// Executor is the seam tests replace. CommandExecutor starts the real
// process, reads stdout and stderr concurrently, and kills the process when
// the context ends. WatchStop turns the persisted stop marker into context
// cancellation so a running encode aborts within one poll interval.
package proc
