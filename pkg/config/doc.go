// Package config loads and validates the nodekeeper configuration file.
// Configuration is YAML, validated with struct tags, and can be watched
// for changes so long-running processes pick up edits without a restart.
package config
