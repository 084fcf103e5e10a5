package server

import (
	"strings"
	"testing"
	"time"

	"github.com/driftchat/drift-server/internal/core"
	"github.com/driftchat/drift-server/internal/proto"
)

func TestScenarioCapacityTwo(t *testing.T) {
	srv := startServer(t, 2)

	x := dialClient(t, srv.Addr())
	bulk := x.authorize("alice")
	if !hasChannel(bulk.Channels, core.DefaultChannel) {
		t.Fatalf("snapshot missing default channel: %v", channelNames(bulk.Channels))
	}

	y := dialClient(t, srv.Addr())
	y.authorize("bob")

	// Third connection is rejected before consuming a slot.
	z := dialClient(t, srv.Addr())
	rejected := z.expect(proto.KindError)
	if rejected.Reason != "Max connections reached" {
		t.Fatalf("unexpected rejection reason %q", rejected.Reason)
	}
	z.expectClosed()

	// X's message reaches Y; X sees only its own echo.
	x.send(proto.MessageFrame(proto.NewMessage(proto.User{Name: "alice"}, core.DefaultChannel, "hi")))

	echo := x.expect(proto.KindMessage)
	if echo.Message.Body != "hi" {
		t.Fatalf("echo body %q", echo.Message.Body)
	}
	relayed := y.expect(proto.KindMessage)
	if relayed.Message.Body != "hi" || relayed.Message.From.Name != "alice" {
		t.Fatalf("unexpected relay: %+v", relayed.Message)
	}

	// The next frame X sees is Y's reply, not a duplicate of its own
	// message via the broadcast path.
	y.send(proto.MessageFrame(proto.NewMessage(proto.User{Name: "bob"}, core.DefaultChannel, "yo")))
	reply := x.expect(proto.KindMessage)
	if reply.Message.Body != "yo" || reply.Message.From.Name != "bob" {
		t.Fatalf("expected bob's reply, got: %+v", reply.Message)
	}
}

func TestAdmissionSlotReleasedOnDisconnect(t *testing.T) {
	srv := startServer(t, 1)

	a := dialClient(t, srv.Addr())
	a.authorize("alice")

	b := dialClient(t, srv.Addr())
	b.expect(proto.KindError)
	b.expectClosed()

	a.conn.Close()

	// Cleanup runs asynchronously after the transport closes; retry until
	// the slot frees up.
	deadline := time.Now().Add(3 * time.Second)
	for {
		c := dialClient(t, srv.Addr())
		c.send(proto.AuthorizeFrame(proto.User{Name: "carol"}))
		f, err := c.tryNext()
		if err == nil && f.Kind == proto.KindBulk {
			return
		}
		c.conn.Close()
		if time.Now().After(deadline) {
			t.Fatalf("slot never released; last frame=%+v err=%v", f, err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestBadFirstFrameClosesWithoutRegistering(t *testing.T) {
	srv := startServer(t, 2)

	c := dialClient(t, srv.Addr())
	c.send(proto.OkFrame())
	c.expectClosed()

	// The slot was returned and nothing was registered: the next client
	// authorizes fine and sees an empty default channel.
	deadline := time.Now().Add(3 * time.Second)
	for {
		d := dialClient(t, srv.Addr())
		d.send(proto.AuthorizeFrame(proto.User{Name: "dave"}))
		f, err := d.tryNext()
		if err == nil && f.Kind == proto.KindBulk {
			for _, ch := range f.Channels {
				if len(ch.Messages) != 0 {
					t.Fatalf("unexpected history in %s", ch.Name)
				}
			}
			return
		}
		d.conn.Close()
		if time.Now().After(deadline) {
			t.Fatalf("could not authorize after bad-frame client; err=%v", err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestGarbageToleratedDuringServing(t *testing.T) {
	srv := startServer(t, 2)

	x := dialClient(t, srv.Addr())
	x.authorize("alice")
	y := dialClient(t, srv.Addr())
	y.authorize("bob")

	// A bare break code can never start a frame; the server logs it,
	// drops the buffer, and keeps the session alive.
	x.sendRaw([]byte{0xff, 0x01, 0x02})
	time.Sleep(50 * time.Millisecond)

	x.send(proto.MessageFrame(proto.NewMessage(proto.User{Name: "alice"}, core.DefaultChannel, "still here")))
	if f := x.expect(proto.KindMessage); f.Message.Body != "still here" {
		t.Fatalf("echo body %q", f.Message.Body)
	}
	if f := y.expect(proto.KindMessage); f.Message.Body != "still here" {
		t.Fatalf("relay body %q", f.Message.Body)
	}
}

func TestMessageToUnknownChannel(t *testing.T) {
	srv := startServer(t, 2)

	x := dialClient(t, srv.Addr())
	x.authorize("alice")
	y := dialClient(t, srv.Addr())
	y.authorize("bob")

	x.send(proto.MessageFrame(proto.NewMessage(proto.User{Name: "alice"}, "ghost", "lost")))

	x.expect(proto.KindMessage) // local echo
	errFrame := x.expect(proto.KindError)
	if !strings.Contains(errFrame.Reason, "channel not found") {
		t.Fatalf("unexpected error reason %q", errFrame.Reason)
	}

	// Y never sees the dropped message: the next frame it receives is the
	// follow-up sent to a real channel.
	x.send(proto.MessageFrame(proto.NewMessage(proto.User{Name: "alice"}, core.DefaultChannel, "found")))
	x.expect(proto.KindMessage)
	if f := y.expect(proto.KindMessage); f.Message.Body != "found" {
		t.Fatalf("expected only the valid message, got %+v", f.Message)
	}
}

func TestChannelCreationFlow(t *testing.T) {
	srv := startServer(t, 2)

	x := dialClient(t, srv.Addr())
	x.authorize("alice")
	y := dialClient(t, srv.Addr())
	y.authorize("bob")

	x.send(proto.ChannelFrame(proto.Channel{Name: "room1", Cover: "cover"}))

	// Creator gets a direct reply; directory members get a broadcast.
	for _, c := range []*testClient{x, y} {
		f := c.expect(proto.KindBulk)
		if !hasChannel(f.Channels, "room1") {
			t.Fatalf("bulk missing room1: %v", channelNames(f.Channels))
		}
	}

	// Duplicate names are rejected, reported to the creator only.
	x.send(proto.ChannelFrame(proto.Channel{Name: "room1"}))
	errFrame := x.expect(proto.KindError)
	if !strings.Contains(errFrame.Reason, "exists") {
		t.Fatalf("unexpected duplicate reason %q", errFrame.Reason)
	}

	// Existing peers inherited membership of the new channel.
	x.send(proto.MessageFrame(proto.NewMessage(proto.User{Name: "alice"}, "room1", "welcome")))
	x.expect(proto.KindMessage)
	f := y.expect(proto.KindMessage)
	if f.Message.Channel != "room1" || f.Message.Body != "welcome" {
		t.Fatalf("unexpected relay in new channel: %+v", f.Message)
	}
}

func TestDisconnectAnnounced(t *testing.T) {
	srv := startServer(t, 2)

	x := dialClient(t, srv.Addr())
	x.authorize("alice")
	y := dialClient(t, srv.Addr())
	y.authorize("bob")

	x.conn.Close()

	f := y.expect(proto.KindDisconnect)
	if f.User == nil || f.User.Name != "alice" {
		t.Fatalf("unexpected disconnect frame: %+v", f)
	}
}
