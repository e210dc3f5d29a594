package poller

import "errors"

// FD 表示文件描述符。
type FD = int

// ErrNotSupported 当前平台没有可用的就绪通知机制
var ErrNotSupported = errors.New("poller: platform not supported")

// Handler 是 poller 的事件回调接口。
// 在对应的 poller goroutine 中调用，要求无阻塞返回。
type Handler interface {
	OnReadable(fd FD)
	OnWritable(fd FD)
	// OnError 在 fd 上报告错误或挂断时调用，是否关闭由实现决定。
	OnError(fd FD, err error)
}

// Poller 提供注册/事件循环。
//
// 关注的事件均为水平触发：只要条件成立且关注未撤销，每轮 Run 都会再次回调。
// Register/Mod/Unregister/Wake/Stop 可在任意 goroutine 调用；Run 仅由一个 goroutine 调用，
// Close 须在 Run 返回后调用。
type Poller interface {
	Register(fd FD, readable, writable bool) error
	Mod(fd FD, readable, writable bool) error
	Unregister(fd FD) error
	Run(h Handler) error
	Wake() error
	Stop() error
	Close() error
}
