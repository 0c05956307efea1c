// Package config loads, normalizes, and validates rxbridge configuration.
//
// It supplies defaults for the exchange file layout, the durable envelope
// slot, and log output, expands tilde paths, and reads TOML files. Commands
// obtain every setting through Load so downstream code sees sanitized paths
// and canonical log formats.
package config
