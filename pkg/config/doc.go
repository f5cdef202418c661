// Package config loads application configuration from environment
// variables, with an optional YAML file overlay for deployments that
// prefer files over env injection. Environment variables win.
package config
