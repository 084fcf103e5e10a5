package server

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftchat/drift-server/internal/config"
	"github.com/driftchat/drift-server/internal/core"
	"github.com/driftchat/drift-server/internal/proto"
)

func startServer(t *testing.T, capacity int, seeds ...core.ChannelSeed) *Server {
	t.Helper()

	logger := zerolog.Nop()
	cfg := config.Config{Addr: "127.0.0.1:0", MaxConnections: capacity}
	registry := core.NewRegistry(&logger, 0, seeds...)

	srv := New(cfg, registry, &logger)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	return srv
}

type testClient struct {
	t     *testing.T
	conn  net.Conn
	codec proto.Codec
	buf   []byte
}

func dialClient(t *testing.T, addr net.Addr) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	return &testClient{t: t, conn: conn, buf: make([]byte, 4096)}
}

func (c *testClient) send(f *proto.Frame) {
	c.t.Helper()

	b, err := proto.EncodeFrame(f)
	if err != nil {
		c.t.Fatalf("encode %s: %v", f.Kind, err)
	}
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("send %s: %v", f.Kind, err)
	}
}

// sendRaw writes arbitrary bytes, bypassing the codec.
func (c *testClient) sendRaw(b []byte) {
	c.t.Helper()

	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("send raw: %v", err)
	}
}

func (c *testClient) tryNext() (*proto.Frame, error) {
	for {
		if f, err := c.codec.Next(); err != nil || f != nil {
			return f, err
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.codec.Append(c.buf[:n])
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *testClient) next() *proto.Frame {
	c.t.Helper()

	f, err := c.tryNext()
	if err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return f
}

func (c *testClient) expect(kind proto.Kind) *proto.Frame {
	c.t.Helper()

	f := c.next()
	if f.Kind != kind {
		c.t.Fatalf("expected %s frame, got %+v", kind, f)
	}
	return f
}

// expectClosed asserts the server hangs up on us.
func (c *testClient) expectClosed() {
	c.t.Helper()

	_, err := c.tryNext()
	if err == nil {
		c.t.Fatal("expected closed connection, got a frame")
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			c.t.Fatal("expected closed connection, timed out instead")
		}
	}
}

// authorize performs the handshake and returns the snapshot.
func (c *testClient) authorize(name string) *proto.Frame {
	c.t.Helper()

	c.send(proto.AuthorizeFrame(proto.User{Name: name}))
	return c.expect(proto.KindBulk)
}

func channelNames(channels []proto.Channel) []string {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name)
	}
	return names
}

func hasChannel(channels []proto.Channel, name string) bool {
	for _, ch := range channels {
		if ch.Name == name {
			return true
		}
	}
	return false
}
