// Package config loads the sender configuration file.
//
// The `sender:` section names the receiver to connect to (target, required),
// how often to write the keepalive payload (interval, default 1s), the
// payload itself (default "\n"), the dial timeout (default 5s) and the
// reconnect backoff (initial 1s, max 60s).
//
// Overrides such as WithTarget are applied after the file is parsed and
// before validation, so a CLI argument can supply a target the file omits.
package config
