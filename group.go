package dgram

import (
	"context"
	"log"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
	"github.com/legamerdc/dgram/internal/netutil"
	"github.com/legamerdc/dgram/poller"
)

var newPoller = poller.New

// Group 持有一组 poller 及其上注册的全部句柄。
// 每个 poller 独占一个 goroutine，是整个子系统唯一阻塞的地方。
type Group struct {
	cfg  Config
	log  *log.Logger
	pls  []poller.Poller
	next atomic.Uint64
	bufs sync.Pool

	mu      sync.RWMutex
	handles map[int]*Handle // fd -> handle
	shut    bool

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
	loops    []atomic.Uint64 // 各 poller goroutine 的 id
}

// NewGroup 创建 cfg.NumPollers 个 poller 并启动事件循环
func NewGroup(cfg Config) (*Group, error) {
	cfg.normalize()
	g := &Group{
		cfg:     cfg,
		log:     cfg.Logger,
		handles: make(map[int]*Handle),
		done:    make(chan struct{}),
	}
	size := cfg.ReadBufferSize
	g.bufs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	for i := 0; i < cfg.NumPollers; i++ {
		p, err := newPoller()
		if err != nil {
			for _, pl := range g.pls {
				_ = pl.Close()
			}
			if errors.Is(err, poller.ErrNotSupported) {
				return nil, ErrPlatformNotSupported
			}
			return nil, err
		}
		g.pls = append(g.pls, p)
	}
	g.loops = make([]atomic.Uint64, len(g.pls))
	for i, p := range g.pls {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.loops[i].Store(goroutineID())
			g.run(i, p)
		}()
	}
	return g, nil
}

func (g *Group) run(idx int, p poller.Poller) {
	err := p.Run((*shardHandler)(&groupShard{Group: g, idx: idx}))
	if err != nil {
		g.log.Printf("dgram: poller %d fatal: %v", idx, err)
		g.stop(groupShutdown(err))
	}
	// 等待全部句柄关闭后再释放 poller，避免对已回收的 fd 做 EPOLL_CTL_DEL
	<-g.done
	if err := p.Close(); err != nil {
		g.log.Printf("dgram: poller %d close: %v", idx, err)
	}
}

// Register 将通道绑定到 Group，返回其 Socket。
func (g *Group) Register(ch Channel) (*Socket, error) {
	if ch == nil {
		return nil, ErrInvalidArgument
	}
	rc, err := ch.SyscallConn()
	if err != nil {
		return nil, registrationFailure(errMetaOpRegister, err)
	}
	var (
		fd     = -1
		family int
		optErr error
	)
	err = rc.Control(func(x uintptr) {
		fd = int(x)
		if optErr = netutil.SetNonblock(fd, true); optErr != nil {
			return
		}
		family, optErr = netutil.Family(fd)
	})
	if err == nil {
		err = optErr
	}
	if err != nil {
		return nil, registrationFailure(errMetaOpRegister, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shut {
		return nil, ErrGroupShutdown
	}
	if _, dup := g.handles[fd]; dup {
		return nil, registrationFailure(errMetaOpRegister, ErrInvalidArgument)
	}
	pl := g.pls[g.next.Add(1)%uint64(len(g.pls))]
	if err := pl.Register(fd, false, false); err != nil {
		return nil, registrationFailure(errMetaOpRegister, err)
	}
	h := &Handle{
		g:          g,
		ch:         ch,
		rc:         rc,
		fd:         fd,
		family:     family,
		laddr:      ch.LocalAddr(),
		pl:         pl,
		registered: true,
	}
	g.handles[fd] = h
	return newSocket(h), nil
}

// Listen 按配置的套接字选项打开 UDP 套接字并注册。
func (g *Group) Listen(network, address string) (*Socket, error) {
	if g.isShut() {
		return nil, ErrGroupShutdown
	}
	lc := net.ListenConfig{Control: netutil.ListenOptions{
		ReuseAddr: g.cfg.ReuseAddr,
		ReusePort: g.cfg.ReusePort,
		RecvBuf:   g.cfg.RecvBufferBytes,
		SendBuf:   g.cfg.SendBufferBytes,
	}.Control()}
	pc, err := lc.ListenPacket(context.Background(), network, address)
	if err != nil {
		return nil, registrationFailure(errMetaOpListen, err)
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, registrationFailure(errMetaOpListen, ErrInvalidArgument)
	}
	s, err := g.Register(uc)
	if err != nil {
		_ = uc.Close()
		return nil, err
	}
	return s, nil
}

// Shutdown 停止全部 poller，以 ErrChannelClosed 关闭所有句柄并释放 poller 资源。
// 只生效一次，之后的 Register/Listen 返回 ErrGroupShutdown。
//
// 可以在完成回调中调用：此时不等待 poller 释放，各 poller goroutine 在回调返回后自行退出。
func (g *Group) Shutdown() error {
	g.stop(ErrChannelClosed)
	if g.onLoop() {
		return nil
	}
	g.wg.Wait()
	return nil
}

// onLoop 判断当前是否运行在某个 poller goroutine 上
func (g *Group) onLoop() bool {
	id := goroutineID()
	for i := range g.loops {
		if g.loops[i].Load() == id {
			return true
		}
	}
	return false
}

// goroutineID 从 runtime.Stack 的首行 "goroutine N [...]" 解析当前 goroutine id
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// Len 返回当前注册的句柄数
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

func (g *Group) isShut() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shut
}

func (g *Group) stop(cause error) {
	g.stopOnce.Do(func() {
		g.mu.Lock()
		g.shut = true
		hs := make([]*Handle, 0, len(g.handles))
		for _, h := range g.handles {
			hs = append(hs, h)
		}
		g.mu.Unlock()
		for i, p := range g.pls {
			if err := p.Stop(); err != nil {
				g.log.Printf("dgram: poller %d stop: %v", i, err)
			}
		}
		for _, h := range hs {
			h.closeWith(cause)
		}
		close(g.done)
	})
}

func (g *Group) lookup(fd int) *Handle {
	g.mu.RLock()
	h := g.handles[fd]
	g.mu.RUnlock()
	return h
}

func (g *Group) remove(h *Handle) {
	g.mu.Lock()
	if g.handles[h.fd] == h {
		delete(g.handles, h.fd)
	}
	g.mu.Unlock()
}

// deliver 调用完成回调；回调中的 panic 被记录，不会中断事件循环。
func (g *Group) deliver(op *pendingOp, p Packet, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Printf("dgram: %s completion panic: %v", op.dir, r)
		}
	}()
	op.complete(p, err)
}

func (g *Group) getBuf() *[]byte  { return g.bufs.Get().(*[]byte) }
func (g *Group) putBuf(b *[]byte) { g.bufs.Put(b) }

// 分片 handler：每个 poller 一个，按 fd 查表分发

type groupShard struct {
	*Group
	idx int
}

type shardHandler groupShard

func (s *shardHandler) OnReadable(fd poller.FD) {
	if h := s.lookup(fd); h != nil {
		h.onReady(dirRead)
	}
}

func (s *shardHandler) OnWritable(fd poller.FD) {
	if h := s.lookup(fd); h != nil {
		h.onReady(dirWrite)
	}
}

func (s *shardHandler) OnError(fd poller.FD, err error) {
	if h := s.lookup(fd); h != nil {
		h.onError(err)
	}
}
