// Package probe inspects media files by running ffmpeg with only an input
// and parsing the stream summary it prints to stderr.
//
// Key types:
//   - Info: codecs, audio channel layout, duration and subtitle streams
//   - SubtitleStream: index, language and codec of one embedded subtitle
//
// Primary entry points:
//   - Run: executes ffmpeg through a proc.Executor and parses its output
//   - Parse: parses captured output, used directly by tests
//
// Helper methods on Info drive the ffmpeg transcode plan: codec validity,
// channel counting and downmix detection.
package probe
