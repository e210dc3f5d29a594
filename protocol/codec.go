package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// BatchItem 用于批前镜像编码。
type BatchItem struct {
	Api     uint16
	Payload []byte
}

// Encoder 提供单帧/批量帧编码。
// 注：批量帧总是压缩（Batched => Compressed）。
type Encoder struct{}

func NewEncoder() *Encoder { return &Encoder{} }


// EncodeSingle 返回：头部 + api + payload（压缩可选）。
func (e *Encoder) EncodeSingle(api uint16, payload []byte, compressed bool) ([]byte, error) {
	body := payload
	if compressed {
		body = compress(payload)
	}
	out := make([]byte, 0, MaxHeaderLen+len(body))
	out, err := AppendHeader(out, Header{Length: len(body), Compressed: compressed})
	if err != nil {
		return nil, err
	}
	out = AppendApi(out, api)
	return append(out, body...), nil
}

// EncodeBatch 将一批消息编码为批前镜像并压缩，返回单帧（Batched=1，隐含 Compressed=1，无 Api 字段）。
func (e *Encoder) EncodeBatch(items []BatchItem) ([]byte, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	var pre bytes.Buffer
	pre.Write(binary.AppendUvarint(nil, uint64(len(items))))
	for _, it := range items {
		pre.Write(AppendApi(nil, it.Api))
		pre.Write(binary.AppendUvarint(nil, uint64(len(it.Payload))))
		pre.Write(it.Payload)
	}
	body := compress(pre.Bytes())
	out := make([]byte, 0, 4+len(body))
	out, err := AppendHeader(out, Header{Length: len(body), Batched: true})
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

// Parser 按帧解析；对批量帧进行解压并回调每条消息。
// 回调可选择返回错误终止解析。
type Parser struct{}

func NewParser() *Parser { return &Parser{} }


var (
	ErrIncomplete = errors.New("protocol: incomplete frame")
	ErrEmptyBatch = errors.New("protocol: empty batch")
	ErrMalformed  = errors.New("protocol: malformed batch")
)

// ParseDatagram 解析一个数据报内的全部帧。数据报须恰好由完整帧组成，
// 末尾残留不完整的帧返回 ErrIncomplete（其之前的帧已回调）。
func (p *Parser) ParseDatagram(b []byte, onMessage func(api uint16, payload []byte) error) error {
	consumed, err := p.Parse(b, onMessage)
	if err != nil {
		return err
	}
	if consumed != len(b) {
		return ErrIncomplete
	}
	return nil
}

// Parse 尝试从 buf 解析尽可能多的帧；返回已消费字节数。
// onMessage(api, payload) 在非批量时直接回调；在批量时对每条批内消息回调。
func (p *Parser) Parse(buf []byte, onMessage func(api uint16, payload []byte) error) (consumed int, _ error) {
	i := 0
	for {
		if len(buf[i:]) < 2 {
			return i, nil // 不足以判断头
		}
		h, c, err := DecodeHeader(buf[i:])
		if err != nil {
			if errors.Is(err, errHeaderTooShort) {
				return i, nil
			}
			return i, err
		}
		if !h.Batched {
			// 非批量：长度不包含 Api，需要额外读取 2 字节的 Api
			if len(buf[i+c:]) < 2+h.Length {
				return i, nil // 不完整帧
			}
			api, _, _ := ReadApi(buf[i+c:])
			msg := buf[i+c+2 : i+c+2+h.Length]
			if h.Compressed {
				out, derr := decompress(msg)
				if derr != nil {
					return i, derr
				}
				msg = out
			}
			if err := onMessage(api, msg); err != nil {
				return i, err
			}
			i += c + 2 + h.Length
			continue
		}
		// 批量：payload 为压缩后的 pre-image，长度即为压缩体长度
		if len(buf[i+c:]) < h.Length {
			return i, nil // 不完整帧
		}
		payload := buf[i+c : i+c+h.Length]
		out, derr := decompress(payload)
		if derr != nil {
			return i, derr
		}
		if err := parseBatch(out, onMessage); err != nil {
			return i, err
		}
		i += c + h.Length
	}
}

func parseBatch(pre []byte, onMessage func(api uint16, payload []byte) error) error {
	r := bytes.NewReader(pre)
	num, err := binary.ReadUvarint(r)
	if err != nil {
		return ErrMalformed
	}
	for j := uint64(0); j < num; j++ {
		var ab [2]byte
		if _, err := io.ReadFull(r, ab[:]); err != nil {
			return ErrMalformed
		}
		api := binary.BigEndian.Uint16(ab[:])
		ln, err := binary.ReadUvarint(r)
		if err != nil || ln > uint64(r.Len()) {
			return ErrMalformed
		}
		if ln == 0 {
			if err := onMessage(api, nil); err != nil {
				return err
			}
			continue
		}
		msg := make([]byte, ln)
		if _, err := io.ReadFull(r, msg); err != nil {
			return ErrMalformed
		}
		if err := onMessage(api, msg); err != nil {
			return err
		}
	}
	if r.Len() != 0 {
		return ErrMalformed
	}
	return nil
}
