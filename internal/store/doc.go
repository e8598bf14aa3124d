// Package store persists daemon state in SQLite: the settings the extension
// options page used to keep (API credentials) and a snapshot of the most
// recent song request so status survives restarts.
//
// The schema is versioned. A database created by a different schema version
// is rejected with ErrSchemaMismatch; delete it to start over.
package store
