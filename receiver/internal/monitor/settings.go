package monitor

import (
	"fmt"
	"time"

	"github.com/obsidianstack/phimon/pkg/phi"
)

// Settings tunes every session started by a Server. Timestamps fed to the
// detector are nanoseconds, so Detector.MinStdDev and Tolerance are too.
type Settings struct {
	Detector phi.Config

	// Thresholds is the escalation ladder, strictly increasing.
	Thresholds []float64

	// StablePhi: a heartbeat arriving with phi at or below this is stable.
	StablePhi float64

	// MinStable stable heartbeats must be exceeded before a peer can be abandoned.
	MinStable int

	// AbandonPhi: a stable peer timing out above this phi is dropped.
	AbandonPhi float64

	// Tolerance is the accuracy of the crossing-time search in nanoseconds.
	Tolerance uint64

	// IdleTimeout is the read deadline when no rung applies or the search fails.
	IdleTimeout time.Duration
}

// DefaultSettings matches the receiver defaults: 1ms min stddev over 10
// intervals, ladder 1/2/3/6, stable at phi 3 after 5 reads, abandon above 6.
func DefaultSettings() Settings {
	return Settings{
		Detector:    phi.Config{MinStdDev: float64(time.Millisecond), HistorySize: phi.DefaultHistorySize},
		Thresholds:  []float64{1, 2, 3, 6},
		StablePhi:   3,
		MinStable:   5,
		AbandonPhi:  6,
		Tolerance:   uint64(time.Microsecond),
		IdleTimeout: 30 * time.Second,
	}
}

// Validate checks the detector configuration and the ladder.
func (s Settings) Validate() error {
	if err := s.Detector.Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if len(s.Thresholds) == 0 {
		return fmt.Errorf("monitor: %w: empty threshold ladder", phi.ErrInvalidConfiguration)
	}
	for i, th := range s.Thresholds {
		if !(th > 0) || (i > 0 && th <= s.Thresholds[i-1]) {
			return fmt.Errorf("monitor: %w: thresholds must be positive and strictly increasing, got %v",
				phi.ErrInvalidConfiguration, s.Thresholds)
		}
	}
	if s.AbandonPhi <= s.StablePhi {
		return fmt.Errorf("monitor: %w: abandon_phi %v must exceed stable_phi %v",
			phi.ErrInvalidConfiguration, s.AbandonPhi, s.StablePhi)
	}
	if s.MinStable < 0 {
		return fmt.Errorf("monitor: %w: negative min_stable", phi.ErrInvalidConfiguration)
	}
	if s.IdleTimeout <= 0 {
		return fmt.Errorf("monitor: %w: idle_timeout must be positive", phi.ErrInvalidConfiguration)
	}
	return nil
}

// NextThreshold returns the smallest rung of ladder that is >= current.
// ok is false when phi is already above the top rung.
func NextThreshold(current float64, ladder []float64) (threshold float64, ok bool) {
	for _, th := range ladder {
		if current <= th {
			return th, true
		}
	}
	return 0, false
}
