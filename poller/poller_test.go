//go:build linux || darwin

package poller

import (
	"net"
	"testing"
	"time"

	"github.com/legamerdc/dgram/internal/netutil"
)

type chanHandler struct {
	readable chan FD
	writable chan FD
}

func (h *chanHandler) OnReadable(fd FD) {
	select {
	case h.readable <- fd:
	default:
	}
}

func (h *chanHandler) OnWritable(fd FD) {
	select {
	case h.writable <- fd:
	default:
	}
}

func (h *chanHandler) OnError(fd FD, err error) {}

func startPoller(t *testing.T) (Poller, *chanHandler, chan error) {
	t.Helper()
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	h := &chanHandler{readable: make(chan FD, 1), writable: make(chan FD, 1)}
	done := make(chan error, 1)
	go func() { done <- p.Run(h) }()
	t.Cleanup(func() {
		_ = p.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("poller did not stop")
		}
		_ = p.Close()
	})
	return p, h, done
}

func udpFD(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	rc, err := c.SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	fd, err := netutil.RawFD(rc)
	if err != nil {
		t.Fatal(err)
	}
	return c, fd
}

func TestStopInterruptsRun(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	done := make(chan error, 1)
	go func() { done <- p.Run(&chanHandler{readable: make(chan FD, 1), writable: make(chan FD, 1)}) }()
	time.Sleep(20 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not wake the poller")
	}
}

func TestReadableAfterDatagram(t *testing.T) {
	p, h, _ := startPoller(t)
	c, fd := udpFD(t)
	if err := p.Register(fd, true, false); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.readable:
		t.Fatal("readable before any datagram")
	case <-time.After(50 * time.Millisecond):
	}
	s, err := net.DialUDP("udp4", nil, c.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-h.readable:
		if got != fd {
			t.Fatalf("readable fd %d, want %d", got, fd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no readable event")
	}
	if err := p.Unregister(fd); err != nil {
		t.Fatal(err)
	}
}

func TestModEnablesWritable(t *testing.T) {
	p, h, _ := startPoller(t)
	_, fd := udpFD(t)
	if err := p.Register(fd, false, false); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.writable:
		t.Fatal("writable without interest")
	case <-time.After(50 * time.Millisecond):
	}
	if err := p.Mod(fd, false, true); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-h.writable:
		if got != fd {
			t.Fatalf("writable fd %d, want %d", got, fd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no writable event after Mod")
	}
	if err := p.Mod(fd, false, false); err != nil {
		t.Fatal(err)
	}
}
