// Package main hosts the vtranscoder CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the engine in the foreground, launches
// and stops a detached daemon, reports progress and history from the shared
// state documents, and scaffolds configuration. It centralizes configuration
// resolution so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
