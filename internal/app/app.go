// Package app wires together the registry, the TCP relay, and the optional
// admin API.
package app

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftchat/drift-server/internal/config"
	"github.com/driftchat/drift-server/internal/core"
	"github.com/driftchat/drift-server/internal/server"
	"github.com/driftchat/drift-server/internal/transport/httpadmin"
)

const adminShutdownTimeout = 5 * time.Second

// App owns the relay server and its supporting services.
type App struct {
	relay *server.Server
	admin *stdhttp.Server
	log   *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	registry := core.NewRegistry(logger, cfg.HistoryLimit, cfg.Channels...)
	relay := server.New(cfg, registry, logger)

	var admin *stdhttp.Server
	if cfg.AdminAddr != "" {
		admin = httpadmin.NewServer(cfg.AdminAddr, httpadmin.NewHandler(registry, relay.Admission(), logger))
	}

	return &App{relay: relay, admin: admin, log: logger}
}

// Run starts the relay (and admin API when configured) and blocks until ctx
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- a.relay.Run(ctx)
	}()

	if a.admin != nil {
		a.log.Info().Str("addr", a.admin.Addr).Msg("admin api listening")
		go func() {
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				errCh <- err
				return
			}
			errCh <- nil
		}()
	}

	select {
	case err := <-errCh:
		a.shutdownAdmin()
		return err
	case <-ctx.Done():
		a.shutdownAdmin()
		return <-errCh
	}
}

func (a *App) shutdownAdmin() {
	if a.admin == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
	defer cancel()

	if err := a.admin.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("admin shutdown")
	}
}
