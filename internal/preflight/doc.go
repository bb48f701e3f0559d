// Package preflight provides readiness checks for the directories, encoder
// binaries and remote services vtranscoder depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results at startup and serves them on the
//     status API, so a broken mount or revoked key is visible before the
//     first window opens.
//   - The CLI "vtranscoder status" command renders the same results.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
