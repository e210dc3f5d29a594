package netutil

import "syscall"

// RawFD 返回 RawConn 底层的 fd。fd 仅在 Control 回调内保证有效，调用方需自行保证生命周期。
func RawFD(rc syscall.RawConn) (int, error) {
	fd := -1
	if err := rc.Control(func(x uintptr) { fd = int(x) }); err != nil {
		return -1, err
	}
	return fd, nil
}

// ListenOptions 为 net.ListenConfig.Control 准备的套接字选项
type ListenOptions struct {
	ReuseAddr bool
	ReusePort bool
	RecvBuf   int
	SendBuf   int
}

// Control 返回可直接赋给 net.ListenConfig.Control 的回调。
func (o ListenOptions) Control() func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(x uintptr) {
			optErr = o.apply(int(x))
		})
		if err != nil {
			return err
		}
		return optErr
	}
}
