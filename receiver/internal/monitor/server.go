package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
)

// Server accepts heartbeat connections and runs one Session per connection.
// All exported methods are safe for concurrent use.
type Server struct {
	obs      Observer
	settings atomic.Pointer[Settings]
	active   atomic.Int64
	maxPeers int
	wg       sync.WaitGroup

	now   func() time.Time // injectable for deterministic tests
	epoch time.Time
}

// NewServer validates settings and returns a Server publishing to obs.
func NewServer(settings Settings, obs Observer) (*Server, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s := &Server{obs: obs, now: time.Now}
	s.epoch = s.now()
	s.settings.Store(&settings)
	return s, nil
}

// Settings returns the settings new sessions start with.
func (s *Server) Settings() Settings {
	return *s.settings.Load()
}

// SetSettings replaces the settings for sessions accepted from now on.
// Running sessions keep the settings they started with.
func (s *Server) SetSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.settings.Store(&settings)
	slog.Info("monitor: settings updated",
		"thresholds", settings.Thresholds,
		"stable_phi", settings.StablePhi,
		"abandon_phi", settings.AbandonPhi)
	return nil
}

// Active returns the number of running sessions.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// LimitPeers caps the number of concurrent sessions. Connections beyond the
// cap wait in the listen backlog until a session ends. n <= 0 means no cap.
// It must be called before Serve.
func (s *Server) LimitPeers(n int) {
	s.maxPeers = n
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener, waits for every session to finish and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxPeers > 0 {
		ln = netutil.LimitListener(ln, s.maxPeers)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	slog.Info("monitor: accepting heartbeats", "addr", ln.Addr().String(), "max_peers", s.maxPeers)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			_ = ln.Close()
			s.wg.Wait()
			return fmt.Errorf("monitor: accept: %w", err)
		}

		sess, err := newSession(conn, s.Settings(), s.obs, s.now, s.epoch)
		if err != nil {
			slog.Error("monitor: session setup failed", "peer", conn.RemoteAddr().String(), "err", err)
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		s.active.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.active.Add(-1)
			if err := sess.Run(ctx); err != nil {
				slog.Warn("monitor: session ended with error", "peer", sess.Peer(), "err", err)
			}
		}()
	}
}
