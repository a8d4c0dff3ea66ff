// Package config loads, normalizes, and validates apodpipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NASA_API_KEY. The Config type centralizes every knob the pipeline and CLI
// need so the API endpoint, sink locations, versioning binaries, and retry
// policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
