// Package config loads and validates the pulsed YAML configuration, resolves
// secrets from the environment, and watches the config file for changes so
// seeded alert rules and webhook endpoints can be reloaded without a restart.
package config
