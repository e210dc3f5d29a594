//go:build linux || darwin

package dgram

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/legamerdc/dgram/poller"
)

func TestShutdownFailsPendingReads(t *testing.T) {
	g := newTestGroup(t)
	a := listen(t, g)
	b := listen(t, g)
	if g.Len() != 2 {
		t.Fatalf("len %d", g.Len())
	}

	ch := make(chan outcome, 4)
	a.ReadAsync(func(p Packet, err error) { ch <- outcome{p, err} })
	b.ReadAsync(func(p Packet, err error) { ch <- outcome{p, err} })

	if err := g.Shutdown(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if o := waitOutcome(t, ch); !IsChannelClosed(o.err) {
			t.Fatalf("err = %v", o.err)
		}
	}
	if g.Len() != 0 {
		t.Fatalf("len %d after shutdown", g.Len())
	}
	if _, err := g.Listen("udp4", "127.0.0.1:0"); !errors.Is(err, ErrGroupShutdown) {
		t.Fatalf("listen after shutdown: %v", err)
	}
	uc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer uc.Close()
	if _, err := g.Register(uc); !IsGroupShutdown(err) {
		t.Fatalf("register after shutdown: %v", err)
	}
	if err := g.Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	g := newTestGroup(t)
	uc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Register(uc); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Register(uc); !IsRegistrationFailure(err) {
		t.Fatalf("err = %v", err)
	}
	if _, err := g.Register(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("nil channel: %v", err)
	}
}

func TestRegisterClosedChannel(t *testing.T) {
	g := newTestGroup(t)
	uc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	_ = uc.Close()
	if _, err := g.Register(uc); !IsRegistrationFailure(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestListenInvalidAddress(t *testing.T) {
	g := newTestGroup(t)
	if _, err := g.Listen("udp4", "127.0.0.1:99999"); !IsRegistrationFailure(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestSocketsSpreadAcrossPollers(t *testing.T) {
	g := newTestGroup(t)
	seen := make(map[poller.Poller]bool)
	for i := 0; i < 4; i++ {
		seen[listen(t, g).h.pl] = true
	}
	if len(seen) != 2 {
		t.Fatalf("sockets landed on %d pollers, want 2", len(seen))
	}
}

// fakePoller 不产生任何就绪事件；fail 收到错误后 Run 以该错误返回。
type fakePoller struct {
	fail     chan error
	stopOnce sync.Once
	stopped  chan struct{}
	closed   chan struct{}
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		fail:    make(chan error, 1),
		stopped: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (f *fakePoller) Register(poller.FD, bool, bool) error { return nil }
func (f *fakePoller) Mod(poller.FD, bool, bool) error      { return nil }
func (f *fakePoller) Unregister(poller.FD) error           { return nil }
func (f *fakePoller) Wake() error                          { return nil }

func (f *fakePoller) Run(poller.Handler) error {
	select {
	case err := <-f.fail:
		return err
	case <-f.stopped:
		return nil
	}
}

func (f *fakePoller) Stop() error {
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakePoller) Close() error {
	close(f.closed)
	return nil
}

func TestPollerFatalShutsDownGroup(t *testing.T) {
	fp := newFakePoller()
	newPoller = func() (poller.Poller, error) { return fp, nil }
	t.Cleanup(func() { newPoller = poller.New })

	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	g, err := NewGroup(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s := listen(t, g)

	ch := make(chan outcome, 2)
	s.ReadAsync(func(p Packet, err error) { ch <- outcome{p, err} })

	cause := errors.New("epoll_wait exploded")
	fp.fail <- cause

	o := waitOutcome(t, ch)
	if !IsGroupShutdown(o.err) {
		t.Fatalf("err = %v, want group shutdown", o.err)
	}
	if err := g.Shutdown(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fp.closed:
	default:
		t.Fatal("poller not released after shutdown")
	}
	if _, err := s.Read(context.Background()); !IsGroupShutdown(err) {
		t.Fatalf("read after fatal: %v", err)
	}
}

func TestNewGroupUnsupportedPlatform(t *testing.T) {
	newPoller = func() (poller.Poller, error) { return nil, poller.ErrNotSupported }
	t.Cleanup(func() { newPoller = poller.New })
	if _, err := NewGroup(DefaultConfig()); !errors.Is(err, ErrPlatformNotSupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestShutdownFromCallback(t *testing.T) {
	g := newTestGroup(t)
	s := listen(t, g)
	from := peer(t)

	done := make(chan error, 1)
	s.ReadAsync(func(_ Packet, err error) {
		if err != nil {
			done <- err
			return
		}
		done <- g.Shutdown()
	})
	sendTo(t, from, s, "stop")
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Shutdown called from a completion callback did not return")
	}

	joined := make(chan struct{})
	go func() {
		_ = g.Shutdown()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(waitTimeout):
		t.Fatal("pollers not released after a callback shutdown")
	}
	if _, err := g.Listen("udp4", "127.0.0.1:0"); !IsGroupShutdown(err) {
		t.Fatalf("listen after shutdown: %v", err)
	}
}
