package dgram

import (
	"github.com/brickingsoft/errors"
)

var (
	// ErrChannelClosed 在已关闭的句柄上操作，或操作在关闭时仍在排队
	ErrChannelClosed = errors.Define("dgram: channel closed")

	// ErrIOFailure 底层系统调用失败（非 would-block），原始错误经 WithWrap 携带。
	// 携带的原因只保留消息，不保留 syscall.Errno 类型：用 errors.Is(err, syscall.ECONNREFUSED)
	// 匹配，errors.As 取不到 Errno。
	ErrIOFailure = errors.Define("dgram: io failure")

	// ErrRegistration 通道无法绑定到 Group
	ErrRegistration = errors.Define("dgram: registration failed")

	// ErrGroupShutdown Group 已关闭
	ErrGroupShutdown = errors.Define("dgram: group shutdown")

	// ErrPlatformNotSupported 非 Linux/Darwin 平台（需要 epoll/kqueue）
	ErrPlatformNotSupported = errors.Define("dgram: platform not supported (requires epoll or kqueue)")

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.Define("dgram: invalid argument")
)

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "dgram"
)

const (
	errMetaOpKey      = "op"
	errMetaOpRegister = "register"
	errMetaOpListen   = "listen"
	errMetaOpRecvFrom = "receive_from"
	errMetaOpSendTo   = "send_to"
	errMetaOpPoll     = "poll"
)

func IsChannelClosed(err error) bool { return errors.Is(err, ErrChannelClosed) }

func IsIOFailure(err error) bool { return errors.Is(err, ErrIOFailure) }

func IsRegistrationFailure(err error) bool { return errors.Is(err, ErrRegistration) }

func IsGroupShutdown(err error) bool { return errors.Is(err, ErrGroupShutdown) }

// ioFailure 包装系统调用错误。cause 的具体类型不会保留，调用方只能用 errors.Is 匹配。
func ioFailure(op string, cause error) error {
	return errors.From(
		ErrIOFailure,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(cause),
	)
}

func registrationFailure(op string, cause error) error {
	return errors.From(
		ErrRegistration,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(cause),
	)
}

func groupShutdown(cause error) error {
	if cause == nil {
		return ErrGroupShutdown
	}
	return errors.From(
		ErrGroupShutdown,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpPoll),
		errors.WithWrap(cause),
	)
}
