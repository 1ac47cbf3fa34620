package phi

import (
	"errors"
	"math"
	"testing"
)

// warmDetector feeds ten heartbeats spaced gap apart and returns the
// detector with the timestamp of the last one.
func warmDetector(t *testing.T, cfg Config, gap uint64) (*Detector, uint64) {
	t.Helper()
	d := mustNew(t, cfg)
	var last uint64
	for n := uint64(0); n < 10; n++ {
		last = n * gap
		d.Heartbeat(last)
	}
	return d, last
}

// assertCrossing checks phi(t-tolerance) < threshold <= phi(t).
func assertCrossing(t *testing.T, d *Detector, at, tolerance uint64, threshold float64) {
	t.Helper()
	pre := d.Phi(at - tolerance)
	got := d.Phi(at)
	if !(pre < threshold && got >= threshold) {
		t.Errorf("phi(%d) = %v < %v && phi(%d) = %v >= %v does not hold",
			at-tolerance, pre, threshold, at, got, threshold)
	}
}

func TestNextCrossingAt_RegularHeartbeats(t *testing.T) {
	const tolerance = 2
	d, now := warmDetector(t, Config{MinStdDev: 1, HistorySize: 3}, 1000)

	at, err := d.NextCrossingAt(now, tolerance, 1.0)
	if err != nil {
		t.Fatalf("NextCrossingAt: %v", err)
	}
	// Mean 1000 and a floored stddev of 1 put the crossing ~1.28 units past
	// the mean gap.
	if at <= now+1001 || at > now+1004 {
		t.Errorf("NextCrossingAt: got %d, want within (%d, %d]", at, now+1001, now+1004)
	}
	assertCrossing(t, d, at, tolerance, 1.0)
}

func TestNextCrossingAt_Ladder(t *testing.T) {
	// Jittered nanosecond-scale heartbeats, as seen by the receiver.
	d := mustNew(t, Config{MinStdDev: 1e6, HistorySize: 10})
	jitter := []uint64{0, 3e6, 1e6, 7e6, 2e6, 5e6, 4e6, 6e6, 1e6, 2e6, 3e6}
	var now uint64
	for i, j := range jitter {
		now = uint64(i)*1e9 + j
		d.Heartbeat(now)
	}

	const tolerance = 1000
	prev := now
	for _, threshold := range []float64{1, 2, 3, 6} {
		at, err := d.NextCrossingAt(now, tolerance, threshold)
		if err != nil {
			t.Fatalf("threshold %v: %v", threshold, err)
		}
		if at < prev {
			t.Errorf("threshold %v: crossing %d precedes the previous rung's %d", threshold, at, prev)
		}
		assertCrossing(t, d, at, tolerance, threshold)
		prev = at
	}
}

func TestNextCrossingAt_FromZero(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	d.Heartbeat(0)

	at, err := d.NextCrossingAt(0, 0, 1.0)
	if err != nil {
		t.Fatalf("NextCrossingAt: %v", err)
	}
	if at != 3 {
		t.Errorf("NextCrossingAt(0, 0, 1): got %d, want 3", at)
	}
	assertCrossing(t, d, at, 1, 1.0)
}

func TestNextCrossingAt_NearTimestampCeiling(t *testing.T) {
	const tolerance = 2
	d := mustNew(t, Config{MinStdDev: 1, HistorySize: 3})
	start := uint64(1<<63) + 10
	var now uint64
	for n := uint64(0); n < 10; n++ {
		now = start + n*1000
		d.Heartbeat(now)
	}

	at, err := d.NextCrossingAt(now, tolerance, 1.0)
	if err != nil {
		t.Fatalf("NextCrossingAt: %v", err)
	}
	if at <= now+1001 || at > now+1004 {
		t.Errorf("NextCrossingAt: got %d, want within (%d, %d]", at, now+1001, now+1004)
	}
	assertCrossing(t, d, at, tolerance, 1.0)
}

func TestNextCrossingAt_AtMaxTimestamp(t *testing.T) {
	d := mustNew(t, Config{MinStdDev: 1, HistorySize: 3})
	last := uint64(math.MaxUint64 - 4000)
	for n := uint64(0); n < 3; n++ {
		d.Heartbeat(last + n*1000)
	}
	now := last + 2000

	// The crossing sits ~1000 units later, still below MaxUint64.
	at, err := d.NextCrossingAt(now, 1, 1.0)
	if err != nil {
		t.Fatalf("NextCrossingAt: %v", err)
	}
	assertCrossing(t, d, at, 1, 1.0)

	// Phi never reaches 400 before the timestamp range ends.
	if _, err := d.NextCrossingAt(now, 1, 400); !errors.Is(err, ErrSearchDidNotConverge) {
		t.Errorf("got err %v, want ErrSearchDidNotConverge", err)
	}
}

func TestNextCrossingAt_Errors(t *testing.T) {
	warm, now := warmDetector(t, DefaultConfig(), 1)

	tests := []struct {
		name      string
		d         *Detector
		now       uint64
		threshold float64
		want      error
	}{
		{"already crossed", warm, 300, 1.0, ErrInvariantViolation},
		{"threshold zero", warm, now, 0, ErrInvariantViolation},
		{"threshold NaN", warm, now, math.NaN(), ErrInvariantViolation},
		{"threshold beyond the phi ceiling", warm, now, 400, ErrSearchDidNotConverge},
		{"no heartbeats", mustNew(t, DefaultConfig()), 0, 1.0, ErrSearchDidNotConverge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.d.NextCrossingAt(tc.now, 1, tc.threshold)
			if !errors.Is(err, tc.want) {
				t.Errorf("got err %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNextCrossingAt_DoesNotMutate(t *testing.T) {
	d, now := warmDetector(t, DefaultConfig(), 100)
	before := d.Intervals()

	if _, err := d.NextCrossingAt(now, 1, 3.0); err != nil {
		t.Fatalf("NextCrossingAt: %v", err)
	}
	after := d.Intervals()
	if len(after) != len(before) {
		t.Fatalf("intervals changed length: %d -> %d", len(before), len(after))
	}
	if last, _ := d.LastHeartbeat(); last != now {
		t.Errorf("LastHeartbeat: got %d, want %d", last, now)
	}
}

func TestBisect_RejectsBrokenBracket(t *testing.T) {
	// f is negative everywhere: the upper end never satisfies f >= 0.
	f := func(uint64) (float64, error) { return -1, nil }
	_, err := bisect(0, 100, 1, f)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("got err %v, want ErrInvariantViolation", err)
	}
}
