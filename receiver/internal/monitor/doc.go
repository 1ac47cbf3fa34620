// Package monitor runs one phi accrual detector per accepted TCP connection.
//
// Each connection is a Session. Any byte read from the peer is a heartbeat.
// After every read or read timeout the session picks the next rung of the
// threshold ladder above the current phi and arms the read deadline at the
// moment phi is predicted to cross it, so the session wakes up exactly when
// suspicion escalates instead of polling.
//
// Session lifecycle:
//
//	warming   accepted, fewer than MinStable stable heartbeats seen
//	alive     at least MinStable heartbeats arrived with phi <= StablePhi
//	suspect   a read deadline expired without data
//	abandoned a stable peer timed out with phi > AbandonPhi; connection dropped
//	closed    the peer hung up, a read failed, or the server shut down
//
// Every step is published as a Status to an Observer. The store, telemetry
// and alerts packages are observers; Observers fans out to several.
package monitor
