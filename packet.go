package dgram

import "net/netip"

// Packet 是一个数据报：读取时 Addr 为发送方，写入时为目的地址。
type Packet struct {
	Addr    netip.AddrPort
	Payload []byte
}
