// Package config loads service configuration. The server reads
// environment variables with the STEWARD_ prefix; the janitor reads an
// optional YAML file for its schedules and falls back to built-in
// defaults.
package config
