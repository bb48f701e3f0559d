// Package opensubtitles is a small client for the OpenSubtitles REST API.
//
// It covers the hash-based flow used to fill in missing subtitle languages:
// optional login, search by movie hash and byte size, download link
// negotiation, payload fetch with a bounded retry, and logout. Every API call
// is paced by a shared rate.Limiter. Payloads that look like HTML error pages
// are rejected with ErrHTMLPayload.
//
// This package has no vtranscoder-specific dependencies.
package opensubtitles
