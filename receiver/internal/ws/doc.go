// Package ws streams receiver state to WebSocket clients: the full peer
// snapshot on a fixed tick, plus a "peer" event whenever a session turns
// suspect, recovers, is abandoned or closes.
package ws
