package config

import "reflect"

// restartSections are bound once at startup: listeners, the HTTP auth
// middleware and the session cap.
var restartSections = map[string]bool{
	"listen":    true,
	"http_port": true,
	"auth":      true,
	"peers.max": true,
}

// Changes names the receiver sections that differ between prev and next, in
// file order.
func Changes(prev, next *Config) []string {
	a, b := prev.Receiver, next.Receiver
	sections := []struct {
		name string
		x, y interface{}
	}{
		{"listen", a.Listen, b.Listen},
		{"http_port", a.HTTPPort, b.HTTPPort},
		{"detector", a.Detector, b.Detector},
		{"thresholds", a.Thresholds, b.Thresholds},
		{"stable_phi", a.StablePhi, b.StablePhi},
		{"min_stable", a.MinStable, b.MinStable},
		{"abandon_phi", a.AbandonPhi, b.AbandonPhi},
		{"tolerance", a.Tolerance, b.Tolerance},
		{"idle_timeout", a.IdleTimeout, b.IdleTimeout},
		{"auth", a.Auth, b.Auth},
		{"peers.ttl", a.Peers.TTL, b.Peers.TTL},
		{"peers.max", a.Peers.Max, b.Peers.Max},
		{"alerts", a.Alerts, b.Alerts},
	}

	var out []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.x, s.y) {
			out = append(out, s.name)
		}
	}
	return out
}

// RestartRequired filters changed down to the sections a running receiver
// cannot apply.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		if restartSections[c] {
			out = append(out, c)
		}
	}
	return out
}
