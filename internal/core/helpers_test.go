package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftchat/drift-server/internal/proto"
)

func testRegistry(seeds ...ChannelSeed) *Registry {
	logger := zerolog.Nop()
	return NewRegistry(&logger, 0, seeds...)
}

func mustReceive(t *testing.T, out *Outbox) *proto.Frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f, err := out.Receive(ctx)
	if err != nil {
		t.Fatalf("expected frame, got error: %v", err)
	}
	return f
}

func mustReceiveKind(t *testing.T, out *Outbox, kind proto.Kind) *proto.Frame {
	t.Helper()

	f := mustReceive(t, out)
	if f.Kind != kind {
		t.Fatalf("expected %s frame, got %s", kind, f.Kind)
	}
	return f
}

func mustBeEmpty(t *testing.T, out *Outbox) {
	t.Helper()

	if n := out.Len(); n != 0 {
		f, _ := out.Receive(context.Background())
		t.Fatalf("expected empty outbox, found %d frames, first: %+v", n, f)
	}
}
