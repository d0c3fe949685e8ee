// Package config loads, normalizes, and validates shortcast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHORTCAST_API_KEY and PUBLISHER_ACCESS_TOKEN. The Config type centralizes
// every knob the daemon and CLI need: API credentials, submission limits,
// publish spacing, retry policy, and the endpoints of the external generation,
// publishing, and webhook services.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
