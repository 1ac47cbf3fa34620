package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/obsidianstack/phimon/pkg/phi"
)

// Session watches one connection with its own detector. It is driven by a
// single goroutine in Run and is not safe for concurrent use.
type Session struct {
	conn     net.Conn
	peer     string
	settings Settings
	det      *phi.Detector
	obs      Observer

	now   func() time.Time // injectable for deterministic tests
	epoch time.Time        // detector timestamps are nanoseconds since epoch

	connectedAt time.Time
	lastBeat    time.Time
	lastGap     time.Duration
	stable      int
	heartbeats  uint64
}

// NewSession builds a session for conn. Timestamps count from now.
func NewSession(conn net.Conn, settings Settings, obs Observer) (*Session, error) {
	return newSession(conn, settings, obs, time.Now, time.Now())
}

func newSession(conn net.Conn, settings Settings, obs Observer, now func() time.Time, epoch time.Time) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	det, err := phi.New(settings.Detector)
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	if obs == nil {
		obs = Observers(nil)
	}
	return &Session{
		conn:     conn,
		peer:     conn.RemoteAddr().String(),
		settings: settings,
		det:      det,
		obs:      obs,
		now:      now,
		epoch:    epoch,
	}, nil
}

// Peer returns the remote address the session is keyed by.
func (s *Session) Peer() string { return s.peer }

// Run records the connection itself as the first heartbeat, then reads until
// the peer hangs up, a read fails, the peer is abandoned or ctx is
// cancelled. The connection is always closed on return. A clean end
// (EOF, abandonment, cancellation) returns nil.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	now := s.now()
	t := s.stamp(now)
	s.connectedAt = now
	s.det.Heartbeat(t)
	s.heartbeats++
	s.lastBeat = now

	slog.Info("monitor: peer connected", "peer", s.peer)

	state := StateWarming
	current := 0.0
	buf := make([]byte, 1)
	for {
		threshold, next := s.arm(now, t, current)
		s.publish(state, current, threshold, next, now)

		n, err := s.conn.Read(buf)
		now = s.now()
		t = s.stamp(now)
		current = s.det.Phi(t)

		if n > 0 {
			if current <= s.settings.StablePhi {
				s.stable++
				if s.stable == s.settings.MinStable {
					slog.Info("monitor: peer stable", "peer", s.peer, "stable", s.stable, "phi", current)
				}
			}
			s.lastGap = now.Sub(s.lastBeat)
			s.lastBeat = now
			s.det.Heartbeat(t)
			s.heartbeats++
			state = StateWarming
			if s.stable >= s.settings.MinStable {
				state = StateAlive
			}
			slog.Debug("monitor: heartbeat",
				"peer", s.peer, "interval", s.lastGap, "stable", s.stable, "phi", current)
		}
		if err == nil {
			continue
		}

		var ne net.Error
		switch {
		case errors.As(err, &ne) && ne.Timeout():
			if s.stable > s.settings.MinStable && current > s.settings.AbandonPhi {
				slog.Warn("monitor: abandoning unstable peer",
					"peer", s.peer, "stable", s.stable, "phi", current)
				s.publish(StateAbandoned, current, 0, time.Time{}, now)
				return nil
			}
			slog.Debug("monitor: read timeout", "peer", s.peer, "stable", s.stable, "phi", current)
			state = StateSuspect

		case ctx.Err() != nil, errors.Is(err, io.EOF):
			slog.Info("monitor: peer disconnected", "peer", s.peer, "heartbeats", s.heartbeats)
			s.publish(StateClosed, current, 0, time.Time{}, now)
			return nil

		default:
			slog.Error("monitor: read failed", "peer", s.peer, "err", err)
			s.publish(StateClosed, current, 0, time.Time{}, now)
			return fmt.Errorf("monitor: read %s: %w", s.peer, err)
		}
	}
}

// arm sets the read deadline for the next step and returns the targeted
// rung (0 when none) and the deadline.
func (s *Session) arm(now time.Time, t uint64, current float64) (float64, time.Time) {
	deadline := now.Add(s.settings.IdleTimeout)
	threshold, ok := NextThreshold(current, s.settings.Thresholds)
	if ok {
		at, err := s.det.NextCrossingAt(t, s.settings.Tolerance, threshold)
		switch {
		case err != nil:
			slog.Debug("monitor: crossing search failed, using idle timeout",
				"peer", s.peer, "threshold", threshold, "err", err)
			threshold = 0
		case at-t > math.MaxInt64:
			threshold = 0
		default:
			deadline = now.Add(time.Duration(at - t))
		}
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		slog.Debug("monitor: set read deadline", "peer", s.peer, "err", err)
	}
	return threshold, deadline
}

func (s *Session) publish(state string, current, threshold float64, next, now time.Time) {
	mean, stddev, _ := s.det.Stats()
	s.obs.Observe(Status{
		Peer:           s.peer,
		State:          state,
		Phi:            current,
		Threshold:      threshold,
		Stable:         s.stable,
		Heartbeats:     s.heartbeats,
		MeanInterval:   time.Duration(mean),
		StdDevInterval: time.Duration(stddev),
		LastInterval:   s.lastGap,
		ConnectedAt:    s.connectedAt,
		LastHeartbeat:  s.lastBeat,
		NextCheck:      next,
		UpdatedAt:      now,
	})
}

// stamp converts a wall time into detector nanoseconds. Times before the
// epoch clamp to zero.
func (s *Session) stamp(t time.Time) uint64 {
	d := t.Sub(s.epoch)
	if d < 0 {
		return 0
	}
	return uint64(d)
}
