// Package logs reads run log files for `vtranscoder logs`.
//
// Last returns the final lines of a file with bounded memory, and Follow
// streams lines appended after an offset until the context ends. A log that
// shrinks (rotated or truncated) is read again from the start.
package logs
