package dgram

import (
	"context"
	"iter"
	"net/netip"

	"github.com/brickingsoft/errors"
	"github.com/legamerdc/dgram/protocol"
)

// Message 是数据报内的一条协议消息
type Message struct {
	Addr    netip.AddrPort
	API     uint16
	Payload []byte
}

// WriteMessage 将单条消息编码为一个数据报发送；负载达到 CompressThreshold 时压缩。
func (s *Socket) WriteMessage(ctx context.Context, addr netip.AddrPort, api uint16, payload []byte) error {
	threshold := s.h.g.cfg.CompressThreshold
	frame, err := s.enc.EncodeSingle(api, payload, threshold > 0 && len(payload) >= threshold)
	if err != nil {
		return err
	}
	return s.Write(ctx, Packet{Addr: addr, Payload: frame})
}

// WriteBatch 将多条消息压缩进同一个数据报发送。
func (s *Socket) WriteBatch(ctx context.Context, addr netip.AddrPort, items []protocol.BatchItem) error {
	frame, err := s.enc.EncodeBatch(items)
	if err != nil {
		return err
	}
	return s.Write(ctx, Packet{Addr: addr, Payload: frame})
}

// Messages 持续读取并解码数据报，批量帧被展开为多条消息。
// 无法解码的数据报产出一个错误后继续读取；读错误产出后序列结束。
func (s *Socket) Messages(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for p, err := range s.Reads(ctx) {
			if err != nil {
				yield(Message{Addr: p.Addr}, err)
				return
			}
			var msgs []Message
			perr := s.prs.ParseDatagram(p.Payload, func(api uint16, payload []byte) error {
				msgs = append(msgs, Message{Addr: p.Addr, API: api, Payload: payload})
				return nil
			})
			for _, m := range msgs {
				if !yield(m, nil) {
					return
				}
			}
			if perr != nil {
				perr = errors.New("decode datagram failed",
					errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
					errors.WithWrap(perr),
				)
				if !yield(Message{Addr: p.Addr}, perr) {
					return
				}
			}
		}
	}
}
