package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/phimon/sender/internal/config"
	"github.com/obsidianstack/phimon/sender/internal/keepalive"
)

func main() {
	var configPath string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "phimon-sender [target]",
		Short: "Writes a keepalive byte to a phimon receiver every interval",
		Long: "phimon-sender connects to a receiver and writes a heartbeat payload on a " +
			"fixed interval, reconnecting with backoff when the connection drops.",
		Example:       "  phimon-sender 127.0.0.1:7946\n  phimon-sender --config sender.yaml",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

			var target string
			if len(args) == 1 {
				target = args[0]
			}

			var cfg *config.Config
			var err error
			if configPath != "" {
				cfg, err = config.Load(configPath, config.WithTarget(target))
			} else {
				cfg, err = config.FromDefaults(config.WithTarget(target))
			}
			if err != nil {
				return err
			}

			slog.Info("phimon-sender starting",
				"target", cfg.Sender.Target,
				"interval", cfg.Sender.Interval,
			)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s := keepalive.New(cfg.Sender)
			s.Run(ctx)

			slog.Info("phimon-sender shutting down", "sent", s.Sent())
			return nil
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to sender.yaml")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log every heartbeat written")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("phimon-sender failed", "err", err)
		os.Exit(1)
	}
}
