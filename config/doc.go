// Package config loads engine configuration from YAML files and the
// environment. A config.yml provides the base, a .env file (when
// present) and real environment variables override it, and the merged
// result is validated before any component starts.
package config
