package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftchat/drift-server/internal/app"
	"github.com/driftchat/drift-server/internal/config"
	"github.com/driftchat/drift-server/internal/log"
)

func main() {
	var (
		configPath string
		addr       string
		adminAddr  string
		maxConns   int
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "drift-server",
		Short:         "drift message-relay chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}

			// Flags set on the command line win over file and env values.
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("admin-addr") {
				cfg.AdminAddr = adminAddr
			}
			if cmd.Flags().Changed("max-conns") {
				cfg.MaxConnections = maxConns
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting drift server")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.New(cfg, logger).Run(ctx)
		},
	}

	defaults := config.Default()
	root.Flags().StringVar(&configPath, "config", "", "path to config file")
	root.Flags().StringVar(&addr, "addr", defaults.Addr, "TCP listen address")
	root.Flags().StringVar(&adminAddr, "admin-addr", defaults.AdminAddr, "admin API listen address (empty disables)")
	root.Flags().IntVar(&maxConns, "max-conns", defaults.MaxConnections, "maximum concurrent connections")
	root.Flags().StringVar(&logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		logger := log.New("error")
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}
