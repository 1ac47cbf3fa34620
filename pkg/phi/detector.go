package phi

import "fmt"

// Default configuration values.
const (
	DefaultMinStdDev   = 1.0
	DefaultHistorySize = 10
)

// Config is the immutable configuration of a Detector.
type Config struct {
	// MinStdDev floors the standard deviation of the learned intervals, in
	// timestamp units. It keeps phi from exploding when heartbeats are very
	// regular or when only a few samples exist. Must be > 0.
	MinStdDev float64

	// HistorySize is the number of most recent intervals retained. Must be > 0.
	HistorySize int
}

// DefaultConfig returns the configuration used when nothing is tuned:
// MinStdDev 1.0 and a window of 10 intervals.
func DefaultConfig() Config {
	return Config{
		MinStdDev:   DefaultMinStdDev,
		HistorySize: DefaultHistorySize,
	}
}

// Validate reports whether c can be used to build a Detector.
func (c Config) Validate() error {
	if !(c.MinStdDev > 0) {
		return fmt.Errorf("%w: min_stddev must be > 0, got %v", ErrInvalidConfiguration, c.MinStdDev)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("%w: history_size must be > 0, got %d", ErrInvalidConfiguration, c.HistorySize)
	}
	return nil
}

// Detector is a phi accrual failure detector for one peer.
//
// It is mutated only by Heartbeat; Phi, NextCrossingAt and the accessors are
// read-only. A Detector is not safe for concurrent use.
type Detector struct {
	cfg Config
	win *window
}

// New validates cfg and returns an empty Detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, win: newWindow(cfg.HistorySize)}, nil
}

// Config returns the configuration the Detector was built with.
func (d *Detector) Config() Config {
	return d.cfg
}

// Heartbeat records a heartbeat observed at t.
//
// The first heartbeat only sets the reference timestamp. A heartbeat earlier
// than the last accepted one is ignored; it never produces a negative
// interval and never fails.
func (d *Detector) Heartbeat(t uint64) {
	d.win.record(t)
}

// Phi returns the suspicion level at now. It is 0 before the first heartbeat
// and whenever now does not exceed the last heartbeat. The result is always
// finite and non-negative.
func (d *Detector) Phi(now uint64) float64 {
	if !d.win.hasLast || now <= d.win.last {
		return 0
	}
	mean, stddev := d.win.moments(d.cfg.MinStdDev)
	return phiOf(pLater(float64(now-d.win.last), mean, stddev))
}

// LastHeartbeat returns the timestamp of the last accepted heartbeat and
// whether one has been recorded.
func (d *Detector) LastHeartbeat() (uint64, bool) {
	return d.win.last, d.win.hasLast
}

// Intervals returns a copy of the retained intervals, oldest first.
func (d *Detector) Intervals() []uint64 {
	return d.win.snapshot()
}

// Stats returns the mean and floored standard deviation currently used to
// score gaps, and the number of intervals they were computed from.
func (d *Detector) Stats() (mean, stddev float64, n int) {
	mean, stddev = d.win.moments(d.cfg.MinStdDev)
	return mean, stddev, len(d.win.intervals)
}
