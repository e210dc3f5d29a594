package dgram

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/legamerdc/dgram/protocol"
)

const maxBatchItems = 16

// Batcher 把发往同一地址的消息聚合为批量数据报。
// 累计字节达到 maxBytes 或条数达到上限时立即发送，否则每个 window 周期发送一次。
type Batcher struct {
	s    *Socket
	addr netip.AddrPort

	mu    sync.Mutex
	queue []protocol.BatchItem
	bytes int
	maxB  int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewBatcher 创建发往 addr 的聚合器。window<=0 时不启动定时发送，只按阈值或 Flush 发送。
func (s *Socket) NewBatcher(addr netip.AddrPort, window time.Duration, maxBytes int) *Batcher {
	if maxBytes <= 0 {
		maxBytes = 1 << 10
	}
	b := &Batcher{s: s, addr: addr, maxB: maxBytes, stopCh: make(chan struct{})}
	if window > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.run(window)
		}()
	}
	return b
}

func (b *Batcher) run(window time.Duration) {
	tk := time.NewTicker(window)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			if err := b.Flush(context.Background()); err != nil {
				b.s.h.g.log.Printf("dgram: batch to %v: %v", b.addr, err)
				if IsChannelClosed(err) {
					return
				}
			}
		case <-b.stopCh:
			return
		}
	}
}

// Add 追加一条消息，触发阈值时在当前 goroutine 发送。
func (b *Batcher) Add(ctx context.Context, api uint16, data []byte) error {
	b.mu.Lock()
	b.queue = append(b.queue, protocol.BatchItem{Api: api, Payload: data})
	b.bytes += len(data)
	var ready []protocol.BatchItem
	if b.bytes >= b.maxB || len(b.queue) >= maxBatchItems {
		ready = b.takeLocked()
	}
	b.mu.Unlock()
	if ready == nil {
		return nil
	}
	return b.s.WriteBatch(ctx, b.addr, ready)
}

// Flush 立即发送已聚合的消息
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	ready := b.takeLocked()
	b.mu.Unlock()
	if ready == nil {
		return nil
	}
	return b.s.WriteBatch(ctx, b.addr, ready)
}

func (b *Batcher) takeLocked() []protocol.BatchItem {
	if len(b.queue) == 0 {
		return nil
	}
	ready := b.queue
	b.queue = nil
	b.bytes = 0
	return ready
}

// Close 停止定时发送并发送剩余消息，不关闭底层 Socket。
func (b *Batcher) Close() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
	return b.Flush(context.Background())
}
