package dgram

import "sync/atomic"

type direction uint8

const (
	dirRead direction = iota
	dirWrite
)

func (d direction) String() string {
	if d == dirWrite {
		return "write"
	}
	return "read"
}

// 操作状态：pending -> running -> done，或 pending -> canceled。
// running 期间遇到 would-block 会退回 pending 并重新排到队首。
const (
	opPending int32 = iota
	opRunning
	opDone
	opCanceled
)

// pendingOp 是排队中的单次读/写。回调恰好调用一次，由成功 claim 的一方负责。
type pendingOp struct {
	dir    direction
	packet Packet // 仅写操作
	state  atomic.Int32
	cb     func(Packet, error)
}

func (op *pendingOp) claim() bool { return op.state.CompareAndSwap(opPending, opRunning) }

func (op *pendingOp) release() { op.state.Store(opPending) }

// cancel 仅在尚未尝试 I/O 时成功；成功后回调不再被调用。
func (op *pendingOp) cancel() bool { return op.state.CompareAndSwap(opPending, opCanceled) }

func (op *pendingOp) canceled() bool { return op.state.Load() == opCanceled }

func (op *pendingOp) complete(p Packet, err error) {
	op.state.Store(opDone)
	op.cb(p, err)
}
