package api

import (
	"fmt"
	"math"

	"github.com/obsidianstack/phimon/receiver/internal/monitor"
)

// DiagnosticHint is one human-readable insight about a peer's liveness.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// jitterRatio is the stddev/mean ratio above which heartbeats are reported
// as irregular.
const jitterRatio = 0.5

// computeDiagnostics derives hints from one peer status, most severe first.
func computeDiagnostics(st monitor.Status) []DiagnosticHint {
	var hints []DiagnosticHint

	switch st.State {
	case monitor.StateAbandoned:
		v := st.Phi
		return append(hints, DiagnosticHint{
			Key:   "abandoned",
			Level: "critical",
			Title: "Peer abandoned",
			Detail: fmt.Sprintf(
				"The peer had settled into a stable heartbeat rhythm and then went quiet "+
					"long enough for phi to reach %.2f. The receiver closed the connection. "+
					"Check whether the sender process is still running and the network path is up.",
				st.Phi,
			),
			Value: &v,
		})

	case monitor.StateClosed:
		return append(hints, DiagnosticHint{
			Key:   "closed",
			Level: "info",
			Title: "Connection closed",
			Detail: fmt.Sprintf(
				"The peer closed its connection after %d heartbeats. "+
					"It is kept here until the peer TTL expires.",
				st.Heartbeats,
			),
		})

	case monitor.StateWarming:
		return append(hints, DiagnosticHint{
			Key:   "warming_up",
			Level: "info",
			Title: "Warming up",
			Detail: "Fewer than two heartbeat intervals have been observed, so the " +
				"detector is using its minimum deviation as the expected interval. " +
				"Phi becomes meaningful after a few more heartbeats.",
		})
	}

	if st.State == monitor.StateSuspect {
		v := st.Phi
		level := "warning"
		if st.Threshold > 0 && st.Phi >= st.Threshold {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "suspect",
			Level: level,
			Title: fmt.Sprintf("phi %.2f", st.Phi),
			Detail: fmt.Sprintf(
				"The last heartbeat is overdue. The mean interval is %s and phi is %.2f, "+
					"meaning roughly a 1 in %.0f chance the peer is merely late.",
				st.MeanInterval, st.Phi, oddsFromPhi(st.Phi),
			),
			Value: &v,
		})
	}

	if st.MeanInterval > 0 {
		ratio := float64(st.StdDevInterval) / float64(st.MeanInterval)
		if ratio > jitterRatio {
			v := ratio
			hints = append(hints, DiagnosticHint{
				Key:   "irregular_heartbeats",
				Level: "info",
				Title: "Irregular heartbeats",
				Detail: fmt.Sprintf(
					"Heartbeat intervals vary a lot (stddev %s against a mean of %s). "+
						"Phi reacts slowly to missing heartbeats when arrivals are this noisy.",
					st.StdDevInterval, st.MeanInterval,
				),
				Value: &v,
			})
		}
	}

	if len(hints) == 0 {
		v := st.Phi
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"Heartbeats arrive about every %s and the peer has been stable for %d reads.",
				st.MeanInterval, st.Stable,
			),
			Value: &v,
		})
	}

	return hints
}

// oddsFromPhi converts phi back to "1 in N" odds, capped at phi 12.
func oddsFromPhi(phi float64) float64 {
	return math.Pow(10, math.Min(phi, 12))
}
