// Package main hosts the songify CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground and
// translates terminal invocations into IPC calls against it: status, song
// triggers, and credential settings. Configuration scaffolding and the style
// list work without a daemon.
package main
