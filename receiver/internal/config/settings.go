package config

import (
	"github.com/obsidianstack/phimon/pkg/phi"
	"github.com/obsidianstack/phimon/receiver/internal/monitor"
)

// Settings converts the receiver section into monitor settings. Durations
// become nanoseconds because the monitor feeds the detector nanosecond
// timestamps.
func (r ReceiverConfig) Settings() monitor.Settings {
	return monitor.Settings{
		Detector: phi.Config{
			MinStdDev:   float64(r.Detector.MinStdDev.Nanoseconds()),
			HistorySize: r.Detector.HistorySize,
		},
		Thresholds:  append([]float64(nil), r.Thresholds...),
		StablePhi:   r.StablePhi,
		MinStable:   r.MinStable,
		AbandonPhi:  r.AbandonPhi,
		Tolerance:   uint64(r.Tolerance.Nanoseconds()),
		IdleTimeout: r.IdleTimeout,
	}
}
