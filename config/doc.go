// Package config loads and validates the coordination service
// configuration, with defaults, YAML files, environment overrides, and a
// polling file watcher for runtime-safe reloads.
package config
