// Package config loads, normalizes, and validates ingest configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// INGEST_POSTGRES_DSN and INGEST_API_TOKEN. The Config type centralizes every
// knob the daemon and CLI need, so the record store, the HTTP API and the
// reaper all see the same sanitized values.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical store drivers and log formats, and clear
// validation errors.
package config
