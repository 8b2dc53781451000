// Package config loads, normalizes, and validates ytsubs configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// YTSUBS_OUTPUT_DIR. Validation failures are tagged with
// services.ErrConfiguration so callers can abort before any work starts.
package config
