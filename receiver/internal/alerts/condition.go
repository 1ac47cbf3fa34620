package alerts

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/phimon/receiver/internal/monitor"
)

// evalCondition evaluates a rule condition string against a peer status.
//
// Supported expressions (field operator value):
//
//	phi > 6
//	state == abandoned
//	state != alive
//	stable < 3
//	heartbeats > 100
//	mean_interval_ms > 2000
//	stddev_interval_ms > 500
//	last_interval_ms > 1500
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, st monitor.Status) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "state" {
		switch op {
		case "==":
			return st.State == rhs, 0
		case "!=":
			return st.State != rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, st)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// validCondition reports whether cond parses to a known field and operator.
func validCondition(cond string) bool {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false
	}
	if parts[0] == "state" {
		return parts[1] == "==" || parts[1] == "!="
	}
	if _, ok := numericField(parts[0], monitor.Status{}); !ok {
		return false
	}
	if _, err := strconv.ParseFloat(parts[2], 64); err != nil {
		return false
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==":
		return true
	}
	return false
}

// numericField maps a field name to its value in the status.
func numericField(field string, st monitor.Status) (float64, bool) {
	switch field {
	case "phi":
		return st.Phi, true
	case "stable":
		return float64(st.Stable), true
	case "heartbeats":
		return float64(st.Heartbeats), true
	case "mean_interval_ms":
		return float64(st.MeanInterval.Microseconds()) / 1000, true
	case "stddev_interval_ms":
		return float64(st.StdDevInterval.Microseconds()) / 1000, true
	case "last_interval_ms":
		return float64(st.LastInterval.Microseconds()) / 1000, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
