// Command smoke is a minimal TCP client for manual end-to-end checks:
// authorize, print the channel snapshot, send one message, then listen for
// relayed traffic until the timeout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/driftchat/drift-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "127.0.0.1:9999", "relay TCP address")
	user := flag.String("user", "tester", "display name to authorize with")
	channel := flag.String("channel", "default", "channel to send to")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(*timeout)
	_ = conn.SetDeadline(deadline)

	send := func(f *proto.Frame) error {
		b, err := proto.EncodeFrame(f)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.Kind, err)
		}
		if _, err := conn.Write(b); err != nil {
			return fmt.Errorf("send %s: %w", f.Kind, err)
		}
		return nil
	}

	if err := send(proto.AuthorizeFrame(proto.User{Name: *user})); err != nil {
		return err
	}

	var codec proto.Codec
	buf := make([]byte, 4096)
	next := func() (*proto.Frame, error) {
		for {
			if f, err := codec.Next(); err != nil || f != nil {
				return f, err
			}
			n, err := conn.Read(buf)
			if n > 0 {
				codec.Append(buf[:n])
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	f, err := next()
	if err != nil {
		return fmt.Errorf("await snapshot: %w", err)
	}
	if f.Kind == proto.KindError {
		return fmt.Errorf("server rejected connection: %s", f.Reason)
	}
	if f.Kind != proto.KindBulk {
		return fmt.Errorf("expected bulk snapshot, got %s", f.Kind)
	}
	fmt.Printf("channels:\n")
	for _, ch := range f.Channels {
		fmt.Printf("  %s (%d messages)\n", ch.Name, len(ch.Messages))
	}

	if err := send(proto.MessageFrame(proto.NewMessage(proto.User{Name: *user}, *channel, *text))); err != nil {
		return err
	}

	for {
		f, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return err
		}
		switch f.Kind {
		case proto.KindMessage:
			fmt.Printf("[%s] %s: %s\n", f.Message.Channel, f.Message.From.Name, f.Message.Body)
		case proto.KindError:
			fmt.Printf("error: %s\n", f.Reason)
		default:
			fmt.Printf("frame: %s\n", f.Kind)
		}
	}
}
