// Package config loads, normalizes, and validates vtranscoder settings.
//
// Settings live in a single TOML document that both the engine and an
// external UI may edit. Load supplies repository defaults, expands user paths
// (including tilde shortcuts), honours environment fallbacks such as
// OPENSUBTITLES_API_KEY, and validates the result. Read performs the same
// steps without validation for commands that only need paths.
//
// The engine reloads settings on every loop iteration, so edits made while the
// daemon runs take effect without a restart. Save replaces the document
// atomically and Watcher reports edits as they land.
package config
