package phi

import "github.com/montanaflynn/stats"

// window is the bounded FIFO of inter-heartbeat gaps plus the timestamp of
// the last accepted heartbeat.
type window struct {
	size      int
	intervals []uint64 // oldest first
	last      uint64
	hasLast   bool
}

func newWindow(size int) *window {
	return &window{
		size:      size,
		intervals: make([]uint64, 0, size+1),
	}
}

// record applies one heartbeat. It reports whether the heartbeat was accepted.
func (w *window) record(t uint64) bool {
	if !w.hasLast {
		w.last = t
		w.hasLast = true
		return true
	}
	if ignoreOutOfOrder(t, w.last) {
		return false
	}

	w.intervals = append(w.intervals, t-w.last)
	w.last = t
	if len(w.intervals) > w.size {
		w.intervals = w.intervals[1:]
	}
	return true
}

// ignoreOutOfOrder is the delivery policy for late heartbeats: a timestamp
// strictly earlier than the last accepted one is dropped. An equal timestamp
// is accepted and records a zero-length interval.
func ignoreOutOfOrder(t, last uint64) bool {
	return t < last
}

// moments returns the mean and the population standard deviation of the
// window, with the standard deviation floored at floor. With fewer than two
// samples there is no variance estimate and both values fall back to floor.
func (w *window) moments(floor float64) (mean, stddev float64) {
	if len(w.intervals) < 2 {
		return floor, floor
	}

	data := make(stats.Float64Data, len(w.intervals))
	for i, v := range w.intervals {
		data[i] = float64(v)
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return floor, floor
	}
	stddev, err = stats.StandardDeviationPopulation(data)
	if err != nil || stddev < floor {
		stddev = floor
	}
	return mean, stddev
}

func (w *window) snapshot() []uint64 {
	out := make([]uint64, len(w.intervals))
	copy(out, w.intervals)
	return out
}
