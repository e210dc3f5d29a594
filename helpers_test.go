//go:build linux || darwin

package dgram

import (
	"io"
	"log"
	"net"
	"net/netip"
	"testing"
	"time"
)

const waitTimeout = 3 * time.Second

func newTestGroup(t *testing.T) *Group {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NumPollers = 2
	cfg.Logger = log.New(io.Discard, "", 0)
	g, err := NewGroup(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = g.Shutdown() })
	return g
}

func listen(t *testing.T, g *Group) *Socket {
	t.Helper()
	s, err := g.Listen("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func addrPort(a net.Addr) netip.AddrPort {
	ap := a.(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// peer 是一个普通的阻塞式 UDP 套接字，作为对端
func peer(t *testing.T) *net.UDPConn {
	t.Helper()
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sendTo(t *testing.T, from *net.UDPConn, to *Socket, payload string) {
	t.Helper()
	if _, err := from.WriteToUDPAddrPort([]byte(payload), addrPort(to.LocalAddr())); err != nil {
		t.Fatal(err)
	}
}

type outcome struct {
	p   Packet
	err error
}

func waitOutcome(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for completion")
	}
	return outcome{}
}

func expectSilent(t *testing.T, ch <-chan outcome, d time.Duration) {
	t.Helper()
	select {
	case o := <-ch:
		t.Fatalf("unexpected completion: %+v", o)
	case <-time.After(d):
	}
}
