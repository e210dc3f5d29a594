//go:build linux || darwin

package netutil

import (
	"net/netip"
	"syscall"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

func SetNonblock(fd int, nonblock bool) error {
	return unix.SetNonblock(fd, nonblock)
}

func SetReusePort(fd int, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, v)
}

func SetReuseAddr(fd int, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
}

func SetRecvBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}
func SetSendBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// SocketError 读取并清除套接字上挂起的错误（SO_ERROR）。
func SocketError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return syscall.Errno(v)
	}
	return nil
}

// Family 返回套接字的地址族（AF_INET / AF_INET6）。
func Family(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch sa.(type) {
	case *unix.SockaddrInet6:
		return unix.AF_INET6, nil
	case *unix.SockaddrInet4:
		return unix.AF_INET, nil
	}
	return 0, unix.EAFNOSUPPORT
}

// Recvfrom 非阻塞接收一个数据报。无数据时返回 iox.ErrWouldBlock。
func Recvfrom(fd int, buf []byte) (int, netip.AddrPort, error) {
	for {
		n, sa, err := unix.Recvfrom(fd, buf, 0)
		if err == nil {
			return n, AddrPortFromSockaddr(sa), nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, netip.AddrPort{}, iox.ErrWouldBlock
		}
		return 0, netip.AddrPort{}, err
	}
}

// Sendto 非阻塞发送一个数据报。发送缓冲已满时返回 iox.ErrWouldBlock。
func Sendto(fd int, family int, p []byte, to netip.AddrPort) error {
	sa, err := SockaddrFromAddrPort(family, to)
	if err != nil {
		return err
	}
	for {
		err = unix.Sendto(fd, p, 0, sa)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return iox.ErrWouldBlock
		}
		return err
	}
}

func AddrPortFromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr).Unmap(), uint16(a.Port))
	}
	return netip.AddrPort{}
}

// SockaddrFromAddrPort 按套接字地址族构造目标地址；IPv6 套接字上的 IPv4 地址使用映射形式。
func SockaddrFromAddrPort(family int, ap netip.AddrPort) (unix.Sockaddr, error) {
	if !ap.IsValid() {
		return nil, unix.EINVAL
	}
	addr := ap.Addr()
	switch family {
	case unix.AF_INET:
		addr = addr.Unmap()
		if !addr.Is4() {
			return nil, unix.EAFNOSUPPORT
		}
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}, nil
	case unix.AF_INET6:
		return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}, nil
	}
	return nil, unix.EAFNOSUPPORT
}
