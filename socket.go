package dgram

import (
	"context"
	"iter"
	"net"

	"github.com/legamerdc/dgram/protocol"
)

// Socket 是面向调用方的数据报套接字。全部方法可并发调用，Close 可与进行中的操作并发。
type Socket struct {
	h   *Handle
	enc *protocol.Encoder
	prs *protocol.Parser
}

func newSocket(h *Handle) *Socket {
	return &Socket{h: h, enc: protocol.NewEncoder(), prs: protocol.NewParser()}
}

// ReadAsync 发起一次读。cb 恰好调用一次：可能在当前 goroutine 同步调用，
// 也可能稍后在 poller goroutine 调用，此时不得阻塞。
func (s *Socket) ReadAsync(cb func(Packet, error)) {
	s.h.read(cb)
}

// WriteAsync 发起一次写，回调约定同 ReadAsync。
func (s *Socket) WriteAsync(p Packet, cb func(error)) {
	s.h.write(p, func(_ Packet, err error) { cb(err) })
}

type result struct {
	p   Packet
	err error
}

// await 等待 op 完成。ctx 结束时若操作尚未被尝试则取消、移出队列并返回 ctx.Err()。
func (s *Socket) await(ctx context.Context, op *pendingOp, ch <-chan result) (Packet, error) {
	if op == nil {
		r := <-ch
		return r.p, r.err
	}
	select {
	case r := <-ch:
		return r.p, r.err
	case <-ctx.Done():
		if op.cancel() {
			s.h.prune(op.dir)
			return Packet{}, ctx.Err()
		}
		r := <-ch
		return r.p, r.err
	}
}

// Read 读取一个数据报。
func (s *Socket) Read(ctx context.Context) (Packet, error) {
	if err := ctx.Err(); err != nil {
		return Packet{}, err
	}
	ch := make(chan result, 1)
	op := s.h.read(func(p Packet, err error) { ch <- result{p, err} })
	return s.await(ctx, op, ch)
}

// Write 发送一个数据报。
func (s *Socket) Write(ctx context.Context, p Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := make(chan result, 1)
	op := s.h.write(p, func(p Packet, err error) { ch <- result{p, err} })
	_, err := s.await(ctx, op, ch)
	return err
}

// Reads 返回无界的数据报序列。每次 range 重新开始；中途 break 后不再发起新的读，
// 遇到错误时产出该错误并结束。
func (s *Socket) Reads(ctx context.Context) iter.Seq2[Packet, error] {
	return func(yield func(Packet, error) bool) {
		for {
			p, err := s.Read(ctx)
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Writes 依次发送 seq 中的数据报，上一个写完成后才取下一个，遇错即停。
func (s *Socket) Writes(ctx context.Context, seq iter.Seq[Packet]) error {
	for p := range seq {
		if err := s.Write(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// LocalAddr 返回绑定地址
func (s *Socket) LocalAddr() net.Addr { return s.h.laddr }

// Close 幂等关闭，排队中的操作以 ErrChannelClosed 失败。
func (s *Socket) Close() error { return s.h.close() }
