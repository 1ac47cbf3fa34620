// Package keepalive writes a heartbeat payload to the receiver at a fixed
// interval over one long-lived TCP connection. When a dial or write fails it
// reconnects with truncated exponential backoff and jitter.
package keepalive
