//go:build linux || darwin

package dgram

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestBatcherFlushesOnThreshold(t *testing.T) {
	g := newTestGroup(t)
	a := listen(t, g)
	b := listen(t, g)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	bt := a.NewBatcher(addrPort(b.LocalAddr()), 0, 1<<20)
	for i := 0; i < maxBatchItems; i++ {
		if err := bt.Add(ctx, uint16(i), []byte(fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}
	var n int
	for m, err := range b.Messages(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		if m.API != uint16(n) || string(m.Payload) != fmt.Sprint(n) {
			t.Fatalf("message %d: api %d %q", n, m.API, m.Payload)
		}
		n++
		if n == maxBatchItems {
			break
		}
	}
	if err := bt.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBatcherFlushesOnWindow(t *testing.T) {
	g := newTestGroup(t)
	a := listen(t, g)
	b := listen(t, g)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	bt := a.NewBatcher(addrPort(b.LocalAddr()), 5*time.Millisecond, 1<<20)
	defer bt.Close()
	if err := bt.Add(ctx, 7, []byte("tick")); err != nil {
		t.Fatal(err)
	}
	m, err := firstMessage(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if m.API != 7 || string(m.Payload) != "tick" {
		t.Fatalf("got api %d %q", m.API, m.Payload)
	}
}

func TestBatcherCloseFlushesRemainder(t *testing.T) {
	g := newTestGroup(t)
	a := listen(t, g)
	b := listen(t, g)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	bt := a.NewBatcher(addrPort(b.LocalAddr()), 0, 1<<20)
	if err := bt.Add(ctx, 3, []byte("last")); err != nil {
		t.Fatal(err)
	}
	if err := bt.Close(); err != nil {
		t.Fatal(err)
	}
	m, err := firstMessage(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if m.API != 3 || string(m.Payload) != "last" {
		t.Fatalf("got api %d %q", m.API, m.Payload)
	}
}

func firstMessage(ctx context.Context, s *Socket) (Message, error) {
	for m, err := range s.Messages(ctx) {
		return m, err
	}
	return Message{}, ctx.Err()
}
