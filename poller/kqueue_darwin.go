//go:build darwin

package poller

import (
	"runtime"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq       int
	wfd      int // 写端，用于唤醒
	rfd      int // 读端，注册到 kqueue
	stopping atomic.Bool
}

func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	// 使用管道作为唤醒
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := p[0], p[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	kev := unix.Kevent_t{
		Ident:  uint64(rfd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	_, err = unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil)
	if err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{kq: kq, wfd: wfd, rfd: rfd}, nil
}

func toggle(on bool) uint16 {
	if on {
		return unix.EV_ENABLE
	}
	return unix.EV_DISABLE
}

// 两个过滤器在 Register 时同时加入，之后只做启用/禁用，水平触发（不带 EV_CLEAR）。
func (p *kqueuePoller) Register(fd FD, readable, writable bool) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | toggle(readable)},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | toggle(writable)},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Mod(fd FD, readable, writable bool) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: toggle(readable)},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: toggle(writable)},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Unregister(fd FD) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Wake() error {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) Stop() error {
	p.stopping.Store(true)
	return p.Wake()
}

func (p *kqueuePoller) Close() error {
	p.stopping.Store(true)
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) Run(h Handler) error {
	defer runtime.KeepAlive(p)
	events := make([]unix.Kevent_t, 1024)
	buf := make([]byte, 16)
	for !p.stopping.Load() {
		n, err := unix.Kevent(p.kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Ident)
			if fd == p.rfd {
				for {
					_, rerr := unix.Read(p.rfd, buf)
					if rerr == unix.EAGAIN {
						break
					}
					if rerr != nil {
						return rerr
					}
				}
				continue
			}
			if (ev.Flags & unix.EV_ERROR) != 0 {
				h.OnError(fd, syscall.Errno(ev.Data))
				continue
			}
			switch ev.Filter {
			case unix.EVFILT_READ:
				h.OnReadable(fd)
			case unix.EVFILT_WRITE:
				h.OnWritable(fd)
			}
		}
	}
	return nil
}
