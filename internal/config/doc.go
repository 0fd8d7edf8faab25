// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It provides
// type-safe access to the settings needed by the server, the worker, and the
// administrative commands while keeping configuration details separate from
// orchestration logic.
package config
