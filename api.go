package dgram

import "log"

// Config 为 Group 配置
type Config struct {
	NumPollers        int         // poller 数量，句柄按轮询分配
	ReadBufferSize    int         // 单个数据报最大长度（字节），超出部分被截断
	RecvBufferBytes   int         // SO_RCVBUF，0 表示系统默认
	SendBufferBytes   int         // SO_SNDBUF，0 表示系统默认
	ReuseAddr         bool        // Listen 时设置 SO_REUSEADDR
	ReusePort         bool        // Listen 时设置 SO_REUSEPORT
	CompressThreshold int         // WriteMessage 负载达到该长度时使用 zstd 压缩，<=0 不压缩
	Logger            *log.Logger // nil 使用 log.Default()
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		NumPollers:        1,
		ReadBufferSize:    64 << 10, // 64 KiB，覆盖 UDP 最大负载
		RecvBufferBytes:   0,
		SendBufferBytes:   0,
		ReuseAddr:         true,
		ReusePort:         false,
		CompressThreshold: 1 << 10, // 1 KiB
		Logger:            nil,
	}
}

func (c *Config) normalize() {
	if c.NumPollers <= 0 {
		c.NumPollers = 1
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 << 10
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}
