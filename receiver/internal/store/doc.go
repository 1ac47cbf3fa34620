// Package store keeps the latest monitor status of every peer in memory.
// Entries outlive their session so abandoned and closed peers stay visible
// until the TTL eviction loop removes them.
package store
