// Package logs reads the daemon log file for `songify logs`: the last N lines,
// then optionally new lines as they are appended.
package logs
