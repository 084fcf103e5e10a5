package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/driftchat/drift-server/internal/core"
	"github.com/driftchat/drift-server/internal/proto"
)

const readBufSize = 4096

// session is the server-side state for one live client connection. Its
// identity is the remote socket address; its outbox is the only way other
// goroutines reach its socket.
type session struct {
	identity string
	conn     net.Conn
	registry *core.Registry
	outbox   *core.Outbox
	log      zerolog.Logger

	user  proto.User
	codec proto.Codec
}

func newSession(conn net.Conn, registry *core.Registry, logger zerolog.Logger) *session {
	return &session{
		identity: conn.RemoteAddr().String(),
		conn:     conn,
		registry: registry,
		outbox:   core.NewOutbox(),
		log:      logger,
	}
}

// run drives the session through Authorizing, Admitted and Serving, and
// performs Closed-state cleanup on the way out. The caller closes the
// connection and releases the admission ticket.
func (s *session) run(ctx context.Context) {
	user, ok := s.authorize()
	if !ok {
		return
	}
	s.user = user

	// Admitted: membership and snapshot commit atomically; broadcasts from
	// here on land in the outbox and flush after the snapshot. The snapshot
	// reply is written directly because the write loop is not running yet.
	channels := s.registry.Register(s.identity, s.outbox)
	if err := s.writeFrame(proto.BulkFrame(nil, channels)); err != nil {
		s.log.Warn().Err(err).Msg("write snapshot")
		s.registry.Leave(s.identity)
		return
	}
	s.log.Info().Str("user", user.Name).Msg("session admitted")

	defer func() {
		s.registry.Leave(s.identity)
		s.registry.BroadcastAll(s.identity, proto.DisconnectFrame(s.user))
		s.outbox.Close()
		s.log.Info().Str("user", s.user.Name).Msg("session closed")
	}()

	s.serve(ctx)
}

// authorize waits for the first frame, which must be Authorize. Any other
// frame, a decode failure, or EOF closes the connection without registering
// the peer anywhere.
func (s *session) authorize() (proto.User, bool) {
	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.codec.Append(buf[:n])
			f, derr := s.codec.Next()
			if derr != nil {
				s.log.Warn().Err(derr).Msg("malformed authorize frame")
				return proto.User{}, false
			}
			if f != nil {
				if f.Kind != proto.KindAuthorize || f.User == nil {
					s.log.Warn().Stringer("kind", f.Kind).Msg("unexpected first frame")
					return proto.User{}, false
				}
				return *f.User, true
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn().Err(err).Msg("read during authorize")
			}
			return proto.User{}, false
		}
	}
}

// serve runs the steady-state loops: one goroutine reads and dispatches
// inbound frames, the other drains the outbox onto the socket. The first to
// fail tears the session down; closing the connection unblocks the reader.
func (s *session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop()
	}()
	go func() {
		errCh <- s.writeLoop(ctx)
	}()

	err := <-errCh
	cancel()
	s.conn.Close()
	<-errCh

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		s.log.Warn().Err(err).Msg("session ended with error")
	}
}

func (s *session) readLoop() error {
	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.codec.Append(buf[:n])
			s.dispatchBuffered()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// dispatchBuffered drains every complete frame currently buffered. Decode
// errors are tolerated during serving: the partial buffer is dropped and the
// session keeps going.
func (s *session) dispatchBuffered() {
	for {
		f, err := s.codec.Next()
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable input")
			s.codec.Discard()
			return
		}
		if f == nil {
			return
		}
		s.dispatch(f)
	}
}

func (s *session) dispatch(f *proto.Frame) {
	switch f.Kind {
	case proto.KindMessage:
		if f.Message == nil {
			return
		}
		msg := *f.Message
		// Echo back to the sender first; broadcast excludes it.
		s.outbox.Push(proto.MessageFrame(msg))
		if err := s.registry.Publish(msg.Channel, s.identity, msg); err != nil {
			s.log.Debug().Err(err).Str("channel", msg.Channel).Msg("message dropped")
			s.outbox.Push(proto.ErrorFrame(err.Error()))
		}

	case proto.KindChannel:
		if f.Channel == nil {
			return
		}
		snapshot, err := s.registry.CreateChannel(*f.Channel, s.identity)
		if err != nil {
			s.log.Debug().Err(err).Str("channel", f.Channel.Name).Msg("channel rejected")
			s.outbox.Push(proto.ErrorFrame(err.Error()))
			return
		}
		s.outbox.Push(proto.BulkFrame(nil, snapshot))

	default:
		// Forward-compatible no-op for frame kinds the server does not
		// act on (Ok, Connect, stray Authorize, ...).
		s.log.Debug().Stringer("kind", f.Kind).Msg("ignoring frame")
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		f, err := s.outbox.Receive(ctx)
		if err != nil {
			if errors.Is(err, core.ErrOutboxClosed) {
				return nil
			}
			return err
		}
		if err := s.writeFrame(f); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
}

func (s *session) writeFrame(f *proto.Frame) error {
	b, err := proto.EncodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.Kind, err)
	}
	_, err = s.conn.Write(b)
	return err
}
