package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/phimon/receiver/internal/alerts"
	"github.com/obsidianstack/phimon/receiver/internal/api"
	"github.com/obsidianstack/phimon/receiver/internal/auth"
	"github.com/obsidianstack/phimon/receiver/internal/config"
	"github.com/obsidianstack/phimon/receiver/internal/monitor"
	"github.com/obsidianstack/phimon/receiver/internal/store"
	"github.com/obsidianstack/phimon/receiver/internal/telemetry"
	"github.com/obsidianstack/phimon/receiver/internal/ws"
)

// Set with -ldflags "-X main.version=... -X main.gitSHA=...".
var (
	version = "dev"
	gitSHA  = "unknown"
)

// broadcastInterval is how often the WebSocket hub pushes the peer snapshot.
const broadcastInterval = 2 * time.Second

func main() {
	var configPath, listen string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "phimon-receiver [listen-addr]",
		Short: "Accepts heartbeat connections and tracks each peer's phi suspicion level",
		Long: "phimon-receiver accepts TCP connections, treats every byte as a heartbeat " +
			"and drops peers whose phi suspicion level shows they went silent. " +
			"Peer state is served over REST, WebSocket and /metrics.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

			cfg := config.Defaults()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if len(args) == 1 {
				listen = args[0]
			}
			if listen != "" {
				cfg.Receiver.Listen = listen
				if err := config.Validate(cfg); err != nil {
					return fmt.Errorf("receiver config: %w", err)
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to receiver.yaml (built-in defaults when empty)")
	rootCmd.Flags().StringVarP(&listen, "listen", "l", "", "heartbeat listen address, overrides receiver.listen")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log every heartbeat and read timeout")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("phimon-receiver failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	rc := cfg.Receiver
	slog.Info("phimon-receiver starting",
		"version", version,
		"listen", rc.Listen,
		"http_port", rc.HTTPPort,
		"thresholds", rc.Thresholds,
		"min_stddev", rc.Detector.MinStdDev,
		"history_size", rc.Detector.HistorySize,
		"auth_mode", rc.Auth.Mode,
		"max_peers", rc.Peers.Max,
	)

	// Peer store with background TTL eviction.
	st := store.New(rc.Peers.TTL)
	go st.Run(ctx)

	metrics := telemetry.New()
	metrics.SetBuildInfo(version, gitSHA)

	alertEngine := alerts.New(rc.Alerts)

	// Snapshots on a tick, peer transitions as they happen.
	hub := ws.New(st, broadcastInterval)
	go hub.Run(ctx)

	srv, err := monitor.NewServer(rc.Settings(), monitor.Observers{st, metrics, alertEngine, hub})
	if err != nil {
		return err
	}
	srv.LimitPeers(rc.Peers.Max)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				if err := srv.SetSettings(next.Receiver.Settings()); err != nil {
					slog.Error("receiver: reloaded settings rejected", "err", err)
					return
				}
				st.SetTTL(next.Receiver.Peers.TTL)
				alertEngine.Update(next.Receiver.Alerts)
			})
			if err != nil {
				slog.Error("receiver: config watch stopped", "err", err)
			}
		}()
	}

	// REST API behind auth, WebSocket stream and metrics on HTTPPort.
	requireKey := auth.APIKeyMiddleware(rc.Auth.Mode, rc.Auth.EffectiveHeader(), rc.Auth.Key())
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", requireKey(metrics.Instrument("api", api.New(st, alertEngine))))
	httpMux.Handle("/ws/stream", requireKey(hub))
	httpMux.Handle("/metrics", metrics.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", rc.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("receiver: HTTP server listening", "port", rc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("receiver: HTTP server stopped", "err", err)
		}
	}()

	err = srv.ListenAndServe(ctx, rc.Listen)

	slog.Info("phimon-receiver shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	return err
}
