//go:build !linux && !darwin

package netutil

import (
	"errors"
	"net/netip"
)

var errUnsupported = errors.New("netutil: platform not supported")

func (o ListenOptions) apply(fd int) error { return nil }

func SetNonblock(fd int, nonblock bool) error { return errUnsupported }

func SocketError(fd int) error { return errUnsupported }

func Family(fd int) (int, error) { return 0, errUnsupported }

func Recvfrom(fd int, buf []byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, errUnsupported
}

func Sendto(fd int, family int, p []byte, to netip.AddrPort) error { return errUnsupported }
