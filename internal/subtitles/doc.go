// Package subtitles prepares the subtitle files that accompany each
// transcoded video.
//
// Resolver runs up to five stages for a job, each gated by its own setting:
//   - probe the source for embedded subtitle streams
//   - extract those streams into the output's subs folder
//   - convert a configured language to SRT when only other formats exist
//   - copy sidecar subtitle files found next to the source
//   - download languages that are still missing from OpenSubtitles
//
// Stages never fail the job. Problems are logged and counted, and the stop
// marker is checked between stages so a stop request ends the job as
// cancelled.
package subtitles
