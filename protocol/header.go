package protocol

import (
	"encoding/binary"
	"errors"
)

// LenFlags 头部编码：
// 短头（2B，BE）：
//   bit15: Compressed
//   bit14: Batched (隐含 Compressed=1)
//   bit13: Ext=0 (短头)
//   bit12..0: Len13 (0..8191)
// 长头（4B，BE）：
//   bit31: Compressed
//   bit30: Batched (隐含 Compressed=1)
//   bit29: Ext=1 (长头)
//   bit28..0: Len29
//
// 非批量帧在头部之后紧跟 Api(uint16, BE)，Len 不含 Api。
// 一个数据报可包含多个完整帧，帧不跨数据报。

const (
	shortHeadMaxLen = (1 << 13) - 1 // 8191
	longHeadMaxLen  = (1 << 29) - 1

	// MaxHeaderLen 为头部加 Api 的最大字节数
	MaxHeaderLen = 4 + 2
)

const (
	flagCompressed = 1 << 15
	flagBatched    = 1 << 14
	flagExt        = 1 << 13
)

var (
	errHeaderTooShort   = errors.New("protocol: header too short")
	errLengthOutOfRange = errors.New("protocol: length out of range")
)

// Header 为解码后的帧头
type Header struct {
	Length     int
	Compressed bool
	Batched    bool
}

// AppendHeader 将帧头追加到 dst。Batched 隐含 Compressed。
func AppendHeader(dst []byte, h Header) ([]byte, error) {
	if h.Length < 0 || h.Length > longHeadMaxLen {
		return dst, errLengthOutOfRange
	}
	if h.Batched {
		h.Compressed = true
	}
	var flags uint16
	if h.Compressed {
		flags |= flagCompressed
	}
	if h.Batched {
		flags |= flagBatched
	}
	if h.Length <= shortHeadMaxLen {
		return binary.BigEndian.AppendUint16(dst, flags|uint16(h.Length)), nil
	}
	v := uint32(flags|flagExt)<<16 | uint32(h.Length)
	return binary.BigEndian.AppendUint32(dst, v), nil
}

// DecodeHeader 解码帧头，返回头部与消费的字节数（2 或 4）。
func DecodeHeader(b []byte) (h Header, consumed int, _ error) {
	if len(b) < 2 {
		return h, 0, errHeaderTooShort
	}
	v16 := binary.BigEndian.Uint16(b[:2])
	h.Compressed = v16&flagCompressed != 0
	h.Batched = v16&flagBatched != 0
	if v16&flagExt == 0 {
		h.Length = int(v16 & 0x1FFF)
		return h, 2, nil
	}
	if len(b) < 4 {
		return Header{}, 0, errHeaderTooShort
	}
	h.Length = int(binary.BigEndian.Uint32(b[:4]) & 0x1FFFFFFF)
	return h, 4, nil
}

// AppendApi 将 api(uint16, BE) 追加到切片末尾。
func AppendApi(dst []byte, api uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, api)
}

// ReadApi 从 b 前两个字节解析 api。
func ReadApi(b []byte) (api uint16, consumed int, _ error) {
	if len(b) < 2 {
		return 0, 0, errHeaderTooShort
	}
	return binary.BigEndian.Uint16(b[:2]), 2, nil
}
