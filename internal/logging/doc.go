// Package logging assembles structured slog loggers and formatting helpers used
// across Songify services.
//
// It owns the console/JSON handlers and exposes context-aware helpers so the
// orchestrator can tag log lines with the current song request ID. The console
// handler renders the request ID and lifecycle state as a compact subject.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
