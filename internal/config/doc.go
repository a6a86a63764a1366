// Package config implements gridcore's layered configuration: compiled-in
// defaults, overridden by a YAML file, overridden by environment
// variables, overridden by CLI flags. A Holder exposes the result with a
// file watcher that hot-reloads the secret and health-check interval
// without a process restart.
package config
