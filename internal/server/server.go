// Package server owns the TCP listener, the admission pool, and the
// per-connection session lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftchat/drift-server/internal/config"
	"github.com/driftchat/drift-server/internal/core"
	"github.com/driftchat/drift-server/internal/proto"
)

// Server accepts TCP connections and runs one session goroutine per
// connection. A failure inside one session never affects another.
type Server struct {
	addr      string
	registry  *core.Registry
	admission *Admission
	log       *zerolog.Logger

	lis net.Listener
}

// New builds a server around an existing registry.
func New(cfg config.Config, registry *core.Registry, logger *zerolog.Logger) *Server {
	return &Server{
		addr:      cfg.Addr,
		registry:  registry,
		admission: NewAdmission(cfg.MaxConnections),
		log:       logger,
	}
}

// Admission exposes the admission pool for introspection.
func (s *Server) Admission() *Admission {
	return s.admission
}

// Listen binds the TCP listener. Split from Serve so callers can learn the
// bound address when listening on port 0.
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.lis = lis
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.lis.Close()
	}()

	s.log.Info().Str("addr", s.lis.Addr().String()).Msg("relay listening")

	for {
		conn, err := s.lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

// Run binds and serves.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sessionID := uuid.NewString()
	logger := s.log.With().
		Str("session_id", sessionID).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	ticket, ok := s.admission.TryAcquire()
	if !ok {
		// Rejection consumes no slot and mutates no state.
		if b, err := proto.EncodeFrame(proto.ErrorFrame("Max connections reached")); err == nil {
			_, _ = conn.Write(b)
		}
		logger.Info().Int("capacity", s.admission.Capacity()).Msg("max connections reached")
		return
	}
	defer ticket.Release()

	logger.Debug().Msg("accepted connection")
	newSession(conn, s.registry, logger).run(ctx)
}
