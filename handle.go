package dgram

import (
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"code.hybscloud.com/iox"
	"github.com/brickingsoft/errors"
	"github.com/legamerdc/dgram/internal/netutil"
	"github.com/legamerdc/dgram/internal/pqueue"
	"github.com/legamerdc/dgram/poller"
)

// Channel 是可注册到 Group 的数据报通道，*net.UDPConn 满足该接口。
type Channel interface {
	SyscallConn() (syscall.RawConn, error)
	LocalAddr() net.Addr
	Close() error
}

type opQueue = atomic.Pointer[pqueue.Queue[*pendingOp]]

// Handle 是单个通道在 Group 内的状态。
//
// 两个队列只通过 CAS 整体替换；fd 仅在 RawConn.Control 内使用，
// 因此并发 Close 不会在系统调用期间回收描述符。
type Handle struct {
	g      *Group
	ch     Channel
	rc     syscall.RawConn
	fd     int
	family int
	laddr  net.Addr
	pl     poller.Poller

	readQ  opQueue
	writeQ opQueue

	closeOnce sync.Once
	closed    atomic.Bool
	cause     error // closed 置位前写入

	// 仅保护关注状态与 Mod 调用
	mu         sync.Mutex
	registered bool
	wantRead   bool
	wantWrite  bool
}

func (h *Handle) queue(d direction) *opQueue {
	if d == dirWrite {
		return &h.writeQ
	}
	return &h.readQ
}

func (h *Handle) closeErr() error {
	if h.cause != nil {
		return h.cause
	}
	return ErrChannelClosed
}

// read 发起一次读。同步完成时返回 nil，否则返回排队的操作。
func (h *Handle) read(cb func(Packet, error)) *pendingOp {
	if h.closed.Load() {
		cb(Packet{}, h.closeErr())
		return nil
	}
	if h.readQ.Load() == nil {
		p, err := h.recv()
		if !iox.IsWouldBlock(err) {
			cb(p, err)
			return nil
		}
	}
	op := &pendingOp{dir: dirRead, cb: cb}
	h.enqueue(op)
	return op
}

// write 发起一次写。同步完成时返回 nil，否则返回排队的操作。
func (h *Handle) write(p Packet, cb func(Packet, error)) *pendingOp {
	if h.closed.Load() {
		cb(p, h.closeErr())
		return nil
	}
	if h.writeQ.Load() == nil {
		err := h.send(p)
		if !iox.IsWouldBlock(err) {
			cb(p, err)
			return nil
		}
	}
	op := &pendingOp{dir: dirWrite, packet: p, cb: cb}
	h.enqueue(op)
	return op
}

func (h *Handle) recv() (Packet, error) {
	bp := h.g.getBuf()
	defer h.g.putBuf(bp)
	var (
		n     int
		p     Packet
		opErr error
	)
	err := h.rc.Control(func(fd uintptr) {
		n, p.Addr, opErr = netutil.Recvfrom(int(fd), *bp)
	})
	if err != nil {
		return Packet{}, h.controlErr(errMetaOpRecvFrom, err)
	}
	if opErr != nil {
		if iox.IsWouldBlock(opErr) {
			return Packet{}, opErr
		}
		return Packet{}, ioFailure(errMetaOpRecvFrom, opErr)
	}
	p.Payload = make([]byte, n)
	copy(p.Payload, (*bp)[:n])
	return p, nil
}

func (h *Handle) send(p Packet) error {
	var opErr error
	err := h.rc.Control(func(fd uintptr) {
		opErr = netutil.Sendto(int(fd), h.family, p.Payload, p.Addr)
	})
	if err != nil {
		return h.controlErr(errMetaOpSendTo, err)
	}
	if opErr != nil {
		if iox.IsWouldBlock(opErr) {
			return opErr
		}
		return ioFailure(errMetaOpSendTo, opErr)
	}
	return nil
}

func (h *Handle) controlErr(op string, err error) error {
	if h.closed.Load() {
		return h.closeErr()
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrChannelClosed
	}
	return ioFailure(op, err)
}

func (h *Handle) enqueue(op *pendingOp) {
	q := h.queue(op.dir)
	for {
		old := q.Load()
		if q.CompareAndSwap(old, old.PushBack(op)) {
			break
		}
	}
	h.afterEnqueue()
}

// requeue 将 would-block 的操作放回队首，下次就绪时优先服务。
func (h *Handle) requeue(op *pendingOp) {
	op.release()
	q := h.queue(op.dir)
	for {
		old := q.Load()
		if q.CompareAndSwap(old, old.PushFront(op)) {
			break
		}
	}
	h.afterEnqueue()
}

// 入队与 close 竞争时，由入队方自行排空，保证没有操作滞留在已关闭的句柄上。
func (h *Handle) afterEnqueue() {
	if h.closed.Load() {
		h.drain(h.closeErr())
		return
	}
	h.updateInterest()
}

func (h *Handle) pop(d direction) *pendingOp {
	q := h.queue(d)
	for {
		old := q.Load()
		if old == nil {
			return nil
		}
		op, rest, _ := old.PopFront()
		if q.CompareAndSwap(old, rest) {
			return op
		}
	}
}

// prune 从队列中摘除已取消的操作，空队列随之撤销关注。
func (h *Handle) prune(d direction) {
	q := h.queue(d)
	for {
		old := q.Load()
		var kept *pqueue.Queue[*pendingOp]
		removed := false
		for op := range old.All() {
			if op.canceled() {
				removed = true
				continue
			}
			kept = kept.PushBack(op)
		}
		if !removed || q.CompareAndSwap(old, kept) {
			break
		}
	}
	h.updateInterest()
}

// onReady 处理一个方向的就绪事件：只服务队首一个操作（跳过已取消的）。
func (h *Handle) onReady(d direction) {
	for {
		op := h.pop(d)
		if op == nil {
			break
		}
		if !op.claim() {
			continue
		}
		var (
			p   Packet
			err error
		)
		if d == dirRead {
			p, err = h.recv()
		} else {
			p, err = op.packet, h.send(op.packet)
		}
		if iox.IsWouldBlock(err) {
			h.requeue(op)
			return
		}
		h.g.deliver(op, p, err)
		break
	}
	h.updateInterest()
}

func (h *Handle) onError(err error) {
	pendingRead := h.readQ.Load() != nil
	pendingWrite := h.writeQ.Load() != nil
	if pendingRead {
		h.onReady(dirRead)
	}
	if pendingWrite {
		h.onReady(dirWrite)
	}
	if pendingRead || pendingWrite {
		return
	}
	var serr error
	_ = h.rc.Control(func(fd uintptr) { serr = netutil.SocketError(int(fd)) })
	h.g.log.Printf("dgram: fd=%d %v, cleared socket error: %v", h.fd, err, serr)
}

// updateInterest 按队列的当前值重算关注事件。
// 每个改变队列的一方在 CAS 之后都会调用，最后一次调用总能看到最终状态。
func (h *Handle) updateInterest() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registered {
		return
	}
	r := h.readQ.Load() != nil
	w := h.writeQ.Load() != nil
	if r == h.wantRead && w == h.wantWrite {
		return
	}
	if err := h.pl.Mod(h.fd, r, w); err != nil {
		h.g.log.Printf("dgram: fd=%d mod interest r=%v w=%v: %v", h.fd, r, w, err)
		return
	}
	wake := (r && !h.wantRead) || (w && !h.wantWrite)
	h.wantRead, h.wantWrite = r, w
	if wake {
		_ = h.pl.Wake()
	}
}

// drain 摘下两个队列并以 err 结束其中每个操作。
func (h *Handle) drain(err error) {
	for _, d := range [...]direction{dirRead, dirWrite} {
		old := h.queue(d).Swap(nil)
		for op := range old.All() {
			if op.claim() {
				h.g.deliver(op, op.packet, err)
			}
		}
	}
}

func (h *Handle) close() error {
	h.closeWith(ErrChannelClosed)
	return nil
}

// closeWith 幂等关闭。排队中的操作以 cause 失败；释放资源的错误只记录日志。
func (h *Handle) closeWith(cause error) {
	h.closeOnce.Do(func() {
		h.cause = cause
		h.closed.Store(true)
		h.drain(cause)
		h.g.remove(h)
		h.mu.Lock()
		if h.registered {
			h.registered = false
			if err := h.pl.Unregister(h.fd); err != nil {
				h.g.log.Printf("dgram: fd=%d unregister: %v", h.fd, err)
			}
		}
		h.mu.Unlock()
		if err := h.ch.Close(); err != nil {
			h.g.log.Printf("dgram: fd=%d close: %v", h.fd, err)
		}
	})
}
