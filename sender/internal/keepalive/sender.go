package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/phimon/sender/internal/config"
)

// dialFunc opens the connection to the receiver. Abstracted so tests can
// inject failing dialers or in-memory pipes.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Sender keeps one heartbeat connection to the receiver alive.
type Sender struct {
	cfg    config.SenderConfig
	dialFn dialFunc // injectable for tests
	sent   atomic.Uint64
}

// New creates a Sender using the given sender config.
func New(cfg config.SenderConfig) *Sender {
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Sender{cfg: cfg, dialFn: d.DialContext}
}

// Sent returns the number of payloads written since the Sender was created.
func (s *Sender) Sent() uint64 {
	return s.sent.Load()
}

// Run dials the target and writes the payload every interval. It reconnects
// with exponential backoff when the connection cannot be opened or a write
// fails. Run blocks until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) {
	bo := newBackoff(s.cfg.Backoff.Initial, s.cfg.Backoff.Max)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, "tcp", s.cfg.Target)
		if err != nil {
			wait := bo.next()
			slog.Error("keepalive: dial failed, will retry",
				"target", s.cfg.Target,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("keepalive: connected", "target", s.cfg.Target, "local", conn.LocalAddr().String())
		bo.reset()

		err = s.stream(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("keepalive: connection lost, will reconnect",
			"target", s.cfg.Target,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// stream writes the payload immediately and then on every tick until a
// write fails or ctx is cancelled.
func (s *Sender) stream(ctx context.Context, conn net.Conn) error {
	payload := []byte(s.cfg.Payload)
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		// A receiver that stops reading must not wedge the sender.
		conn.SetWriteDeadline(time.Now().Add(s.cfg.DialTimeout)) //nolint:errcheck
		if _, err := conn.Write(payload); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		s.sent.Add(1)
		slog.Debug("keepalive: wrote heartbeat", "target", s.cfg.Target)

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
