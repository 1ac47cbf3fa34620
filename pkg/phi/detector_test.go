package phi

import (
	"errors"
	"reflect"
	"testing"
)

// mustNew builds a Detector or fails the test.
func mustNew(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return d
}

// --- construction ---

func TestNew_Defaults(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	if d.Config().MinStdDev != 1.0 {
		t.Errorf("MinStdDev: got %v, want 1.0", d.Config().MinStdDev)
	}
	if d.Config().HistorySize != 10 {
		t.Errorf("HistorySize: got %d, want 10", d.Config().HistorySize)
	}
	if _, ok := d.LastHeartbeat(); ok {
		t.Error("LastHeartbeat on a fresh detector: want none")
	}
	if n := len(d.Intervals()); n != 0 {
		t.Errorf("Intervals on a fresh detector: got %d, want 0", n)
	}
}

func TestNew_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero min_stddev", Config{MinStdDev: 0, HistorySize: 10}},
		{"negative min_stddev", Config{MinStdDev: -1, HistorySize: 10}},
		{"zero history_size", Config{MinStdDev: 1, HistorySize: 0}},
		{"negative history_size", Config{MinStdDev: 1, HistorySize: -3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := New(tc.cfg)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("New: got err %v, want ErrInvalidConfiguration", err)
			}
			if d != nil {
				t.Error("New: want nil detector on error")
			}
		})
	}
}

// --- heartbeat ---

func TestHeartbeat_OutOfOrderIsNoOp(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	for _, ts := range []uint64{10, 20, 35} {
		d.Heartbeat(ts)
	}
	beforeIntervals := d.Intervals()
	beforeLast, _ := d.LastHeartbeat()

	d.Heartbeat(34)
	d.Heartbeat(0)

	if got := d.Intervals(); !reflect.DeepEqual(got, beforeIntervals) {
		t.Errorf("Intervals changed: got %v, want %v", got, beforeIntervals)
	}
	if got, _ := d.LastHeartbeat(); got != beforeLast {
		t.Errorf("LastHeartbeat changed: got %d, want %d", got, beforeLast)
	}
}

func TestHeartbeat_HistoryBound(t *testing.T) {
	for _, size := range []int{1, 2, 3, 10, 25} {
		d := mustNew(t, Config{MinStdDev: 1, HistorySize: size})
		var ts uint64
		for i := 0; i < 100; i++ {
			ts += uint64(i%7 + 1)
			d.Heartbeat(ts)
			if n := len(d.Intervals()); n > size {
				t.Fatalf("history_size %d: %d intervals after %d heartbeats", size, n, i+1)
			}
		}
		if n := len(d.Intervals()); n != size {
			t.Errorf("history_size %d: got %d intervals, want a full window", size, n)
		}
	}
}

func TestIntervals_ReturnsCopy(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	d.Heartbeat(0)
	d.Heartbeat(5)

	iv := d.Intervals()
	iv[0] = 999
	if got := d.Intervals()[0]; got != 5 {
		t.Errorf("Intervals()[0] after mutating the copy: got %d, want 5", got)
	}
}

// --- phi ---

func TestPhi_ZeroWithoutEvidence(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	if got := d.Phi(1_000_000); got != 0 {
		t.Errorf("Phi before any heartbeat: got %v, want 0", got)
	}

	d.Heartbeat(100)
	d.Heartbeat(200)
	for _, now := range []uint64{0, 150, 200} {
		if got := d.Phi(now); got != 0 {
			t.Errorf("Phi(%d) with last heartbeat 200: got %v, want 0", now, got)
		}
	}
}

func TestPhi_RegularHeartbeatsStayLowThenRise(t *testing.T) {
	const gap = 1000
	d := mustNew(t, Config{MinStdDev: 50, HistorySize: 10})

	var last uint64
	for i := uint64(0); i < 20; i++ {
		last = i * gap
		d.Heartbeat(last)
		if got := d.Phi(last); got != 0 {
			t.Fatalf("Phi right after heartbeat %d: got %v, want 0", i, got)
		}
		if i < 2 {
			continue // no variance estimate yet
		}
		if got := d.Phi(last + 1); got > 0.01 {
			t.Fatalf("Phi one unit after heartbeat %d: got %v, want ~0", i, got)
		}
	}

	prev := -1.0
	for k := uint64(1); k <= 10; k++ {
		got := d.Phi(last + k*gap)
		if got < prev {
			t.Fatalf("Phi(last + %d*gap) = %v decreased from %v", k, got, prev)
		}
		prev = got
	}
}

// Ticks at 0..9 then silence: phi stays low on time and is high at t=300.
func TestPhi_DetectsSilence(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	for ts := uint64(0); ts < 10; ts++ {
		d.Heartbeat(ts)
	}

	if got := d.Phi(10); got >= 1.0 {
		t.Errorf("Phi(10): got %v, want < 1.0", got)
	}
	if got := d.Phi(300); got <= 1.0 {
		t.Errorf("Phi(300): got %v, want > 1.0", got)
	}
	for _, now := range []uint64{110, 200, 300} {
		if got := d.Phi(now); got <= 1.0 {
			t.Errorf("Phi(%d): got %v, want > 1.0", now, got)
		}
	}
}

func TestPhi_LongRunStaysLow(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	for ts := uint64(0); ts < 100; ts++ {
		d.Heartbeat(ts)
		if ts > 10 {
			if got := d.Phi(ts + 1); got >= 1.0 {
				t.Fatalf("Phi(%d) on schedule: got %v, want < 1.0", ts+1, got)
			}
		}
	}
}

func TestPhi_Recovers(t *testing.T) {
	d := mustNew(t, Config{MinStdDev: 1, HistorySize: 3})
	for ts := uint64(0); ts < 10; ts++ {
		d.Heartbeat(ts)
	}
	if got := d.Phi(20); got <= 1.0 {
		t.Fatalf("Phi(20) after a gap: got %v, want > 1.0", got)
	}

	for ts := uint64(20); ts < 30; ts++ {
		d.Heartbeat(ts)
	}
	if got := d.Phi(30); got >= 1.0 {
		t.Errorf("Phi(30) after recovering: got %v, want < 1.0", got)
	}
}

func TestPhi_Bounded(t *testing.T) {
	d := mustNew(t, DefaultConfig())
	d.Heartbeat(0)
	d.Heartbeat(1)
	d.Heartbeat(2)

	got := d.Phi(^uint64(0))
	if got < 300 || got > 308 {
		t.Errorf("Phi at the end of time: got %v, want the ~307.65 ceiling", got)
	}
}

func TestStats(t *testing.T) {
	d := mustNew(t, Config{MinStdDev: 0.5, HistorySize: 4})
	for _, ts := range []uint64{0, 10, 20, 30, 40} {
		d.Heartbeat(ts)
	}
	mean, sd, n := d.Stats()
	if n != 4 || mean != 10 || sd != 0.5 {
		t.Errorf("Stats: got (%v, %v, %d), want (10, 0.5, 4)", mean, sd, n)
	}
}
