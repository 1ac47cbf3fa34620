package monitor

import "time"

// Session states.
const (
	StateWarming   = "warming"
	StateAlive     = "alive"
	StateSuspect   = "suspect"
	StateAbandoned = "abandoned"
	StateClosed    = "closed"
)

// Status is what a session knows about its peer after one step.
type Status struct {
	Peer  string
	State string

	// Phi is the suspicion level at the time of the step, measured before
	// any heartbeat recorded by that step.
	Phi float64

	// Threshold is the ladder rung the next deadline targets; 0 when the
	// deadline fell back to the idle timeout.
	Threshold float64

	Stable     int
	Heartbeats uint64

	MeanInterval   time.Duration
	StdDevInterval time.Duration
	LastInterval   time.Duration

	ConnectedAt   time.Time
	LastHeartbeat time.Time
	NextCheck     time.Time
	UpdatedAt     time.Time
}

// Final reports whether the session has ended.
func (s Status) Final() bool {
	return s.State == StateAbandoned || s.State == StateClosed
}

// Observer receives every Status a session publishes. Observe is called
// from session goroutines and must be safe for concurrent use.
type Observer interface {
	Observe(Status)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Status)

// Observe calls f(st).
func (f ObserverFunc) Observe(st Status) { f(st) }

// Observers fans a status out to each observer in order.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(st Status) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(st)
		}
	}
}
