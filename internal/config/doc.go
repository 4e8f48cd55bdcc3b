// Package config loads and validates the server configuration.
//
// Configuration is read from a YAML file with ${VAR} environment
// expansion, then defaults are applied and the result is validated.
package config
