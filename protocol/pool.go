package protocol

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// 单个数据报解压后的上限，防止解压炸弹
const maxDecodedSize = 1 << 20

var (
	encoderPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithEncoderConcurrency(1),
		)
		return enc
	}}
	decoderPool = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecodedSize),
		)
		return dec
	}}
)

func getEncoder() *zstd.Encoder  { return encoderPool.Get().(*zstd.Encoder) }
func putEncoder(e *zstd.Encoder) { encoderPool.Put(e) }
func getDecoder() *zstd.Decoder  { return decoderPool.Get().(*zstd.Decoder) }
func putDecoder(d *zstd.Decoder) { decoderPool.Put(d) }

func compress(src []byte) []byte {
	zw := getEncoder()
	out := zw.EncodeAll(src, nil)
	putEncoder(zw)
	return out
}

func decompress(src []byte) ([]byte, error) {
	dz := getDecoder()
	out, err := dz.DecodeAll(src, nil)
	putDecoder(dz)
	return out, err
}
