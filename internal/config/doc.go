// Package config loads, normalizes, and validates Songify configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and PIAPI_KEY, optionally sourced from a .env file next to
// the config. The Config type centralizes the timer constants of the request
// lifecycle (ticker period, handshake retry policy, persistence grace period)
// so tests and the daemon agree on them.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
