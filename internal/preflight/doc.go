// Package preflight provides readiness checks for the filesystem paths,
// executables, and credentials songify depends on.
//
// The daemon logs RunAll at startup and the CLI "songify status" command
// renders the same results when the daemon is not running.
package preflight
