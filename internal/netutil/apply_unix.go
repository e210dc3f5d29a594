//go:build linux || darwin

package netutil

func (o ListenOptions) apply(fd int) error {
	if o.ReuseAddr {
		if err := SetReuseAddr(fd, true); err != nil {
			return err
		}
	}
	if o.ReusePort {
		if err := SetReusePort(fd, true); err != nil {
			return err
		}
	}
	if o.RecvBuf > 0 {
		if err := SetRecvBuf(fd, o.RecvBuf); err != nil {
			return err
		}
	}
	if o.SendBuf > 0 {
		if err := SetSendBuf(fd, o.SendBuf); err != nil {
			return err
		}
	}
	return nil
}
