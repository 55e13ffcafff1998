// Package config loads gtrans settings from a TOML file, GTRANS_ environment
// variables and command line flags, and turns them into engine batches and
// download requests.
package config
